package markup

import (
	"io"
	"strings"
)

// ----------------------------- Escaping -------------------------------------

// Escape returns s with &, <, > and " replaced by their HTML entities.
// When s contains none of them it is returned as is, without allocating.
func Escape(s string) string {
	i := nextSpecial(s, 0)
	if i < 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + len(s)/4)
	_ = escapeSpans(&sb, s, i)
	return sb.String()
}

// EscapeTo streams the escaped form of s into w. Every run of ordinary bytes is
// written with a single call; each special byte costs one extra write.
func EscapeTo(w io.Writer, s string) error {
	i := nextSpecial(s, 0)
	if i < 0 {
		_, err := io.WriteString(w, s)
		return err
	}
	return escapeSpans(w, s, i)
}

func escapeSpans(w io.Writer, s string, i int) error {
	last := 0
	for ; i >= 0; i = nextSpecial(s, last) {
		if i > last {
			if _, err := io.WriteString(w, s[last:i]); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, entity(s[i])); err != nil {
			return err
		}
		last = i + 1
	}
	if last < len(s) {
		_, err := io.WriteString(w, s[last:])
		return err
	}
	return nil
}

// nextSpecial returns the index of the next byte at or after from that needs
// escaping, or -1. Multi-byte UTF-8 sequences never contain these ASCII bytes,
// so scanning bytes cannot split a character.
func nextSpecial(s string, from int) int {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case '&', '<', '>', '"':
			return i
		}
	}
	return -1
}

func entity(c byte) string {
	switch c {
	case '&':
		return "&amp;"
	case '<':
		return "&lt;"
	case '>':
		return "&gt;"
	default:
		return "&quot;"
	}
}
