package cli

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
)

type lineResult struct {
	text string
	err  error
}

// LineReader reads operator input on a background goroutine so that a
// pending read can be abandoned when its context is cancelled. The REPL and
// the confirmation prompter share one reader so no typed line is lost.
type LineReader struct {
	src   *bufio.Reader
	lines chan lineResult
	// pending is a read requested but not yet consumed.
	pending bool
	mu      sync.Mutex
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{src: bufio.NewReader(r), lines: make(chan lineResult)}
}

// ReadLine returns the next line without its terminator. It returns
// ctx.Err() when ctx ends first; the line is then kept for the next call.
func (l *LineReader) ReadLine(ctx context.Context) (string, error) {
	l.request()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-l.lines:
		l.mu.Lock()
		l.pending = false
		l.mu.Unlock()
		return res.text, res.err
	}
}

func (l *LineReader) request() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending {
		return
	}
	l.pending = true
	go func() {
		text, err := l.src.ReadString('\n')
		if err == io.EOF && text != "" {
			err = nil
		}
		l.lines <- lineResult{text: strings.TrimRight(text, "\r\n"), err: err}
	}()
}
