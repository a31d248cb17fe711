// Package extraction pulls runnable shell commands out of free-form assistant text.
//
// Only fenced code blocks are considered. A block qualifies when its info string is
// empty or names a shell dialect, its trimmed body is non-empty and its first line is
// not a comment. Blocks without a closing fence are ignored.
package extraction

import (
	"iter"
	"strings"
)

// Candidate is one runnable block in the order it appeared.
type Candidate struct {
	Command  string
	Language string
	// Line is the 1-based line of the opening fence.
	Line int
}

var defaultLanguages = []string{"sh", "bash", "shell", "zsh", "console", "shell-session", "kubectl", "helm"}

// Engine scans assistant messages for candidates.
type Engine struct {
	languages map[string]bool
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLanguages replaces the accepted info strings.
func WithLanguages(langs ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(langs))
		for _, lang := range langs {
			e.languages[strings.ToLower(lang)] = true
		}
	}
}

// New builds an Engine that accepts the usual shell info strings.
func New(opts ...Option) *Engine {
	e := &Engine{}
	WithLanguages(defaultLanguages...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns every candidate in message, in appearance order.
func (e *Engine) Extract(message string) []Candidate {
	var out []Candidate
	for c := range e.All(message) {
		out = append(out, c)
	}
	return out
}

// Commands implements ports.CommandExtractor.
func (e *Engine) Commands(message string) []string {
	var out []string
	for c := range e.All(message) {
		out = append(out, c.Command)
	}
	return out
}

// All yields candidates lazily.
func (e *Engine) All(message string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for b := range blocks(message) {
			if !e.accepts(b.info) {
				continue
			}
			command, ok := normalize(b)
			if !ok {
				continue
			}
			if !yield(Candidate{Command: command, Language: b.info, Line: b.line}) {
				return
			}
		}
	}
}

func (e *Engine) accepts(info string) bool {
	return info == "" || e.languages[info]
}

type block struct {
	info string
	body []string
	line int
}

type fence struct {
	char   byte
	length int
}

// blocks yields closed fenced blocks. An opening fence with no matching close
// consumes the rest of the message and yields nothing.
func blocks(message string) iter.Seq[block] {
	return func(yield func(block) bool) {
		lines := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
		for i := 0; i < len(lines); i++ {
			open, info, ok := openingFence(lines[i])
			if !ok {
				continue
			}
			start := i
			closed := false
			var body []string
			for i++; i < len(lines); i++ {
				if isClosingFence(lines[i], open) {
					closed = true
					break
				}
				body = append(body, lines[i])
			}
			if !closed {
				return
			}
			if !yield(block{info: info, body: body, line: start + 1}) {
				return
			}
		}
	}
}

func openingFence(line string) (fence, string, bool) {
	trimmed, ok := stripIndent(line)
	if !ok || len(trimmed) < 3 {
		return fence{}, "", false
	}
	ch := trimmed[0]
	if ch != '`' && ch != '~' {
		return fence{}, "", false
	}
	n := countRun(trimmed, ch)
	if n < 3 {
		return fence{}, "", false
	}
	rest := strings.TrimSpace(trimmed[n:])
	if ch == '`' && strings.ContainsRune(rest, '`') {
		return fence{}, "", false
	}
	info := ""
	if fields := strings.Fields(rest); len(fields) > 0 {
		info = strings.ToLower(strings.Trim(fields[0], "{}."))
	}
	return fence{char: ch, length: n}, info, true
}

func isClosingFence(line string, open fence) bool {
	trimmed, ok := stripIndent(line)
	if !ok || len(trimmed) == 0 || trimmed[0] != open.char {
		return false
	}
	n := countRun(trimmed, open.char)
	return n >= open.length && strings.TrimSpace(trimmed[n:]) == ""
}

// stripIndent allows up to three leading spaces like CommonMark.
func stripIndent(line string) (string, bool) {
	spaces := 0
	for spaces < len(line) && line[spaces] == ' ' {
		spaces++
	}
	if spaces > 3 {
		return "", false
	}
	return line[spaces:], true
}

func countRun(s string, ch byte) int {
	n := 0
	for n < len(s) && s[n] == ch {
		n++
	}
	return n
}

func normalize(b block) (string, bool) {
	body := b.body
	if b.info == "console" || b.info == "shell-session" {
		body = promptLines(body)
	}
	text := strings.TrimSpace(strings.Join(body, "\n"))
	if text == "" {
		return "", false
	}
	first := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		first = text[:idx]
	}
	if strings.HasPrefix(strings.TrimSpace(first), "#") {
		return "", false
	}
	return text, true
}

// promptLines keeps only "$ " lines of a transcript, minus the prompt. A block
// with no prompt lines is returned unchanged.
func promptLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(trimmed, "$ ") {
			out = append(out, strings.TrimPrefix(trimmed, "$ "))
		}
	}
	if len(out) == 0 {
		return lines
	}
	return out
}
