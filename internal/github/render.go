package github

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// payload accumulates provider text up to a byte cap.
type payload struct {
	sb        strings.Builder
	cap       int
	truncated bool
}

func newPayload(cap int) *payload { return &payload{cap: cap} }

// line appends one line. Once the cap is reached further lines are dropped
// and the payload is marked truncated.
func (p *payload) line(format string, args ...any) bool {
	if p.truncated {
		return false
	}
	s := format
	if len(args) > 0 {
		s = fmt.Sprintf(format, args...)
	}
	if p.sb.Len()+len(s)+1 > p.cap {
		p.truncated = true
		return false
	}
	p.sb.WriteString(s)
	p.sb.WriteByte('\n')
	return true
}

// block appends multi-line text, clipping it to what fits.
func (p *payload) block(text string) {
	if p.truncated {
		return
	}
	room := p.cap - p.sb.Len() - 1
	if room <= 0 {
		p.truncated = true
		return
	}
	if len(text) > room {
		text = clip(text, room)
		p.truncated = true
	}
	p.sb.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		p.sb.WriteByte('\n')
	}
}

func (p *payload) String() string { return strings.TrimRight(p.sb.String(), "\n") }

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// firstLine returns the first line of s, trimmed.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
