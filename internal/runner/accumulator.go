package runner

import (
	"bytes"
	"sync"
	"unicode/utf8"
)

// accumulator is an append-only, mutex-guarded byte buffer. With a
// positive limit it keeps accepting writes past the limit but discards
// them, so the writing side never stalls.
type accumulator struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newAccumulator(limit int) *accumulator {
	return &accumulator{limit: limit}
}

func (a *accumulator) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.limit <= 0 {
		return a.buf.Write(p)
	}
	remaining := a.limit - a.buf.Len()
	if remaining <= 0 {
		if len(p) > 0 {
			a.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remaining {
		// Report all bytes as consumed to avoid short write errors from io.Copy.
		a.buf.Write(p[:remaining])
		a.truncated = true
		return len(p), nil
	}
	return a.buf.Write(p)
}

// text returns the decoded contents together with a copy of the raw bytes.
func (a *accumulator) text() (string, []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	raw := bytes.Clone(a.buf.Bytes())
	return decode(raw, a.truncated), raw
}

func (a *accumulator) wasTruncated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.truncated
}

// decode returns b as text, or "" if b is not valid UTF-8. A cut made by
// the output cap may split the last rune; those trailing bytes are dropped
// before validating.
func decode(b []byte, truncated bool) string {
	if truncated {
		for i := 0; i < utf8.UTFMax-1 && len(b) > 0 && !utf8.Valid(b); i++ {
			b = b[:len(b)-1]
		}
	}
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}
