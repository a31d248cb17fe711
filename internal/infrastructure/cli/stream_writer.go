package cli

import (
	"fmt"
	"io"
	"strings"
)

// streamWriter prints assistant text as it arrives and remembers whether the
// cursor sits at the start of a line.
type streamWriter struct {
	out     io.Writer
	midLine bool
}

// newStreamWriter builds a streamWriter for stdout.
func newStreamWriter(out io.Writer) *streamWriter {
	return &streamWriter{out: out}
}

func (s *streamWriter) WriteChunk(text string) {
	if text == "" {
		return
	}
	fmt.Fprint(s.out, text)
	s.midLine = !strings.HasSuffix(text, "\n")
}

// EndLine terminates a partially written line.
func (s *streamWriter) EndLine() {
	if s.midLine {
		fmt.Fprintln(s.out)
		s.midLine = false
	}
}
