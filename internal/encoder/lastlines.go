package encoder

import (
	"bytes"
	"strings"
	"sync"
)

// LastLines is an io.Writer that keeps the last n lines written to it.
type LastLines struct {
	mu      sync.Mutex
	partial bytes.Buffer
	lines   []string
	next    int
	full    bool
}

// NewLastLines keeps up to limit lines; limit below 1 is treated as 1.
func NewLastLines(limit int) *LastLines {
	if limit < 1 {
		limit = 1
	}
	return &LastLines{lines: make([]string, limit)}
}

func (l *LastLines) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.partial.Write(p)
	b := l.partial.Bytes()
	pos := 0
	for {
		i := bytes.IndexAny(b[pos:], "\n\r")
		if i < 0 {
			break
		}
		l.add(string(b[pos : pos+i+1]))
		pos += i + 1
	}
	rest := append([]byte(nil), b[pos:]...)
	l.partial.Reset()
	l.partial.Write(rest)
	return len(p), nil
}

// Close flushes an unterminated last line.
func (l *LastLines) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.partial.Len() > 0 {
		l.add(l.partial.String())
		l.partial.Reset()
	}
	return nil
}

func (l *LastLines) add(line string) {
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
}

// String returns the kept lines, oldest first, without a trailing newline.
func (l *LastLines) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	if l.full {
		for _, s := range l.lines[l.next:] {
			b.WriteString(s)
		}
	}
	for _, s := range l.lines[:l.next] {
		b.WriteString(s)
	}
	return strings.TrimRight(b.String(), "\r\n")
}
