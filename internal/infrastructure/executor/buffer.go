package executor

import (
	"bytes"
	"fmt"
	"sync"
)

// limitedBuffer keeps the first max bytes written and counts the rest.
type limitedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	max     int
	dropped int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return b.buf.Write(p)
	}
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.dropped += len(p)
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.dropped += len(p) - remaining
		return len(p), nil
	}
	return b.buf.Write(p)
}

// Truncated reports whether any bytes were discarded.
func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// String returns the kept prefix followed by the truncation marker when bytes were dropped.
func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dropped == 0 {
		return b.buf.String()
	}
	return b.buf.String() + TruncationMarker(b.dropped)
}

// TruncationMarker is appended after a capped stream.
func TruncationMarker(omitted int) string {
	return fmt.Sprintf("\n[output truncated: %d bytes omitted]", omitted)
}
