// Package diag prints template errors for people: a located header, the
// offending source line and a caret under the reported column.
package diag

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/oarkflow/markup"
	"github.com/oarkflow/markup/internal/logging"
)

type styles struct {
	location lipgloss.Style
	kind     lipgloss.Style
	gutter   lipgloss.Style
	caret    lipgloss.Style
	hint     lipgloss.Style
}

// Printer formats errors, colored when its output is a terminal.
type Printer struct {
	w     io.Writer
	color bool
	st    styles
}

// New returns a Printer for w. Color is enabled only when w is a terminal.
func New(w io.Writer) *Printer {
	return NewWithColor(w, logging.IsTerminal(w))
}

func NewWithColor(w io.Writer, color bool) *Printer {
	if w == nil {
		w = io.Discard
	}
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		color: color,
		st: styles{
			location: r.NewStyle().Bold(true),
			kind:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
			gutter:   r.NewStyle().Foreground(lipgloss.Color("8")),
			caret:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
			hint:     r.NewStyle().Foreground(lipgloss.Color("11")),
		},
	}
}

func (p *Printer) paint(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

// Print writes the diagnostic for err. name labels the template unit and src
// is its text; either may be empty. Parse errors carry their own source.
func (p *Printer) Print(name, src string, err error) {
	fmt.Fprint(p.w, p.Format(name, src, err))
}

// Format renders the diagnostic for err as text ending in a newline.
func (p *Printer) Format(name, src string, err error) string {
	var sb strings.Builder
	var pe *markup.ParseError
	var ee *markup.EvalError
	var we *markup.WriteError
	switch {
	case errors.As(err, &pe):
		if src == "" {
			src = pe.Source
		}
		p.header(&sb, name, &pe.Pos, "parse error", pe.Msg)
		p.excerpt(&sb, src, pe.Pos)
		if pe.Near != "" {
			sb.WriteString(p.paint(p.st.hint, "  near "+strconv.Quote(pe.Near)))
			sb.WriteByte('\n')
		}
	case errors.As(err, &ee):
		p.header(&sb, name, &ee.Pos, "eval error", ee.Cause.Error())
		if !p.excerpt(&sb, src, ee.Pos) && ee.Expr != "" {
			sb.WriteString(p.paint(p.st.hint, "  in "+strconv.Quote(ee.Expr)))
			sb.WriteByte('\n')
		}
	case errors.As(err, &we):
		p.header(&sb, name, nil, "write error", we.Err.Error())
	default:
		p.header(&sb, name, nil, "error", err.Error())
	}
	return sb.String()
}

func (p *Printer) header(sb *strings.Builder, name string, pos *markup.Pos, kind, msg string) {
	loc := name
	if pos != nil && pos.Line > 0 {
		if loc != "" {
			loc += ":"
		}
		loc += pos.String()
	}
	if loc != "" {
		sb.WriteString(p.paint(p.st.location, loc+":"))
		sb.WriteByte(' ')
	}
	sb.WriteString(p.paint(p.st.kind, kind+":"))
	sb.WriteByte(' ')
	sb.WriteString(msg)
	sb.WriteByte('\n')
}

// excerpt writes the source line holding pos and a caret below it. It
// reports false when pos is not inside src.
func (p *Printer) excerpt(sb *strings.Builder, src string, pos markup.Pos) bool {
	line, col, ok := Line(src, pos)
	if !ok {
		return false
	}
	num := strconv.Itoa(pos.Line)
	sb.WriteString(p.paint(p.st.gutter, " "+num+" | "))
	sb.WriteString(line)
	sb.WriteByte('\n')

	// Tabs before the caret are copied so it lines up in any tab width.
	var pad strings.Builder
	for i, r := range line {
		if utf8.RuneCountInString(line[:i]) >= col-1 {
			break
		}
		if r == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
	}
	sb.WriteString(p.paint(p.st.gutter, " "+strings.Repeat(" ", len(num))+" | "))
	sb.WriteString(pad.String())
	sb.WriteString(p.paint(p.st.caret, "^"))
	sb.WriteByte('\n')
	return true
}

// Line returns the text of the source line at pos, without its newline, and
// the 1-based rune column within it.
func Line(src string, pos markup.Pos) (string, int, bool) {
	if src == "" || pos.Offset < 0 || pos.Offset > len(src) || pos.Line <= 0 {
		return "", 0, false
	}
	start := strings.LastIndexByte(src[:pos.Offset], '\n') + 1
	end := strings.IndexByte(src[start:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += start
	}
	line := strings.TrimSuffix(src[start:end], "\r")
	col := utf8.RuneCountInString(src[start:pos.Offset]) + 1
	return line, col, true
}
