// Package storage persists a history of completed fetches into a SQL
// database. It is optional; a nil *History is a valid no-op sink.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/justlep/scraper/internal/config"
)

// Record captures one completed fetch for the history table.
type Record struct {
	URL        string
	FinalURL   string
	StartToken string
	StopToken  string
	FetchedAt  time.Time
	BodyBytes  int
	LoadMillis int64
	Fragment   string
}

// History writes fetch records into a relational database.
type History struct {
	db          *sql.DB
	autoMigrate bool
}

// NewHistory opens the configured database and prepares the schema.
func NewHistory(cfg config.HistoryConfig) (*History, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("history config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	h := &History{db: db, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := h.ensureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return h, nil
}

// Save inserts one fetch record. A repeated URL updates the existing row
// so the table reflects the most recent fetch per location.
func (h *History) Save(ctx context.Context, rec Record) error {
	if h == nil || h.db == nil {
		return nil
	}
	if err := h.insert(ctx, rec); err != nil {
		if h.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := h.ensureSchema(ctx); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := h.insert(ctx, rec); retryErr != nil {
				return fmt.Errorf("insert fetch record: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("insert fetch record: %w", err)
	}
	return nil
}

func (h *History) insert(ctx context.Context, rec Record) error {
	query := `
        INSERT INTO fetches (url, final_url, start_token, stop_token, fetched_at, body_bytes, load_millis, fragment)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (url) DO UPDATE SET
            final_url = EXCLUDED.final_url,
            start_token = EXCLUDED.start_token,
            stop_token = EXCLUDED.stop_token,
            fetched_at = EXCLUDED.fetched_at,
            body_bytes = EXCLUDED.body_bytes,
            load_millis = EXCLUDED.load_millis,
            fragment = EXCLUDED.fragment
    `
	_, err := h.db.ExecContext(ctx, query,
		rec.URL,
		rec.FinalURL,
		rec.StartToken,
		rec.StopToken,
		rec.FetchedAt,
		rec.BodyBytes,
		rec.LoadMillis,
		rec.Fragment,
	)
	return err
}

// Recent returns the latest records, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	if h == nil || h.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `
        SELECT url, final_url, start_token, stop_token, fetched_at, body_bytes, load_millis
        FROM fetches ORDER BY fetched_at DESC LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.URL, &rec.FinalURL, &rec.StartToken, &rec.StopToken,
			&rec.FetchedAt, &rec.BodyBytes, &rec.LoadMillis); err != nil {
			return nil, fmt.Errorf("scan fetch record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying DB connection.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *History) ensureSchema(ctx context.Context) error {
	if h == nil || h.db == nil || !h.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetches (
		    url TEXT PRIMARY KEY,
		    final_url TEXT,
		    start_token TEXT,
		    stop_token TEXT,
		    fetched_at TIMESTAMPTZ,
		    body_bytes INT,
		    load_millis BIGINT,
		    fragment TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_fetched_at ON fetches (fetched_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := h.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
