package scraper

import (
	"errors"
	"fmt"
	"strings"
)

// Header names accepted without a hyphen. Anything else must contain a
// hyphen (case-insensitive), which covers the x-* and vendor-prefixed
// names custom headers realistically use.
var plainHeaderNames = map[string]struct{}{
	"cookie":        {},
	"authorization": {},
	"accept":        {},
}

// ParseHeaderBlock parses a newline-separated block of "Name: value"
// pairs. Values are trimmed. A malformed line fails the whole parse with
// an error naming the offending line.
func ParseHeaderBlock(raw string) (map[string]string, error) {
	headers := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("invalid header line %q: missing colon", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if err := checkHeaderName(name); err != nil {
			return nil, fmt.Errorf("invalid header line %q: %v", line, err)
		}
		headers[name] = value
	}
	return headers, nil
}

func checkHeaderName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if !strings.Contains(name, "-") {
		if _, ok := plainHeaderNames[strings.ToLower(name)]; !ok {
			return fmt.Errorf("name %q not allowed", name)
		}
	}
	return nil
}
