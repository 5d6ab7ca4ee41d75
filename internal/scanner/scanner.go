// Package scanner implements the incremental response-stream scanner: a
// state machine that consumes arbitrarily-sized body chunks, locates a
// start marker, accumulates output up to a stop marker or byte budget,
// and signals when the underlying exchange can be torn down.
package scanner

import "bytes"

// Outcome is the result of feeding one chunk.
type Outcome int

const (
	// Continue means the scanner needs more chunks.
	Continue Outcome = iota
	// Done means the scan is terminal; no further chunks are needed and
	// the exchange should be aborted.
	Done
)

// Config sets up one scanner instance. A fresh instance is used per HTTP
// exchange, including each redirect hop.
type Config struct {
	StartToken    []byte
	StartIncluded bool
	StopToken     []byte
	StopIncluded  bool

	// MaxBytes bounds the output length. Must be positive.
	MaxBytes int

	// MinBuffer is a hint for how many pending bytes to accumulate before
	// scanning; the effective minimum also covers both token lengths so a
	// token can never hide entirely inside an unscanned window.
	MinBuffer int
}

// Scanner consumes body chunks and produces exactly one terminal output.
// Not safe for concurrent use; one exchange feeds it sequentially.
type Scanner struct {
	start         []byte
	startIncluded bool
	stop          []byte
	stopIncluded  bool
	maxBytes      int
	minBuffer     int

	foundStart bool
	pending    []byte
	output     []byte
	// stopFloor is the index in output below which the stop token cannot
	// newly match because that region was already scanned.
	stopFloor int
	done      bool
}

// New builds a scanner. MaxBytes must already be resolved to a positive
// budget by the caller.
func New(cfg Config) *Scanner {
	minBuffer := cfg.MinBuffer
	if len(cfg.StartToken) > minBuffer {
		minBuffer = len(cfg.StartToken)
	}
	if len(cfg.StopToken) > minBuffer {
		minBuffer = len(cfg.StopToken)
	}
	return &Scanner{
		start:         cfg.StartToken,
		startIncluded: cfg.StartIncluded,
		stop:          cfg.StopToken,
		stopIncluded:  cfg.StopIncluded,
		maxBytes:      cfg.MaxBytes,
		minBuffer:     minBuffer,
		foundStart:    len(cfg.StartToken) == 0,
	}
}

// Feed appends one chunk and advances the state machine. Chunks arriving
// after a terminal outcome are ignored.
func (s *Scanner) Feed(chunk []byte) Outcome {
	return s.consume(chunk, false)
}

// Finish forces a final scan over any pending bytes at stream end. It is
// called when the body closes naturally before a terminal outcome.
func (s *Scanner) Finish() Outcome {
	return s.consume(nil, true)
}

// Output returns the accumulated result. Valid once the scan is terminal
// or Finish has run.
func (s *Scanner) Output() []byte {
	return s.output
}

func (s *Scanner) consume(chunk []byte, final bool) Outcome {
	if s.done {
		return Done
	}
	s.pending = append(s.pending, chunk...)

	// Amortize token search cost over larger windows.
	if len(s.pending) < s.minBuffer && !final {
		return Continue
	}

	if !s.foundStart {
		idx := bytes.Index(s.pending, s.start)
		if idx < 0 {
			// A token could straddle the next chunk boundary; keep only
			// its possible prefix so pending never grows unbounded.
			keep := len(s.start) - 1
			if keep < len(s.pending) {
				tail := s.pending[len(s.pending)-keep:]
				s.pending = append(s.pending[:0], tail...)
			}
			if final {
				s.done = true
				return Done
			}
			return Continue
		}
		rest := s.pending[idx+len(s.start):]
		if s.startIncluded {
			s.output = append(s.output, s.start...)
			s.stopFloor = len(s.start)
		}
		s.pending = append(s.pending[:0:0], rest...)
		s.foundStart = true
	}

	s.output = append(s.output, s.pending...)
	s.pending = s.pending[:0]

	if len(s.stop) > 0 {
		if idx := bytes.Index(s.output[s.stopFloor:], s.stop); idx >= 0 {
			end := s.stopFloor + idx
			if s.stopIncluded {
				end += len(s.stop)
			}
			if end > s.maxBytes {
				end = s.maxBytes
			}
			s.output = s.output[:end]
			s.done = true
			return Done
		}
		// Re-scan window for the next arrival, in case the token
		// straddles the new boundary.
		if floor := len(s.output) - (len(s.stop) - 1); floor > s.stopFloor {
			s.stopFloor = floor
		}
	}

	if len(s.output) >= s.maxBytes {
		s.output = s.output[:s.maxBytes]
		s.done = true
		return Done
	}
	if final {
		s.done = true
		return Done
	}
	return Continue
}
