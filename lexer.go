package markup

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ----------------------------- Lexer ----------------------------------------

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokChar
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokInt:
		return "integer"
	case tokFloat:
		return "float"
	case tokString:
		return "string literal"
	case tokChar:
		return "char literal"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	// val is the identifier spelling, the punctuation, the digits of a number,
	// or the decoded contents of a string/char literal.
	val string
	pos Pos
	end int
}

func (t token) is(kind tokenKind, val string) bool {
	return t.kind == kind && t.val == val
}

func (t token) punct(val string) bool { return t.kind == tokPunct && t.val == val }

func (t token) keyword(val string) bool { return t.kind == tokIdent && t.val == val }

// puncts are matched longest first.
var puncts = []string{
	"..=", "..", "::", "=>", "==", "!=", "<=", ">=", "&&", "||",
	"@", "#", ".", "$", ";", ",", ":", "?", "=", "+", "-", "*", "/", "%",
	"<", ">", "!", "&", "|", "{", "}", "[", "]", "(", ")",
}

type lexer struct {
	src  string
	i    int
	line int
	col  int
}

// tokenize splits src into tokens. Comments (// and /* */) and whitespace are
// dropped. The returned slice always ends with a tokEOF token.
func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src, line: 1, col: 1}
	toks := make([]token, 0, len(src)/4+1)
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) pos() Pos { return Pos{Offset: lx.i, Line: lx.line, Column: lx.col} }

func (lx *lexer) errorf(p Pos, msg string) error {
	end := p.Offset + 12
	if end > len(lx.src) {
		end = len(lx.src)
	}
	return &ParseError{Pos: p, Msg: msg, Near: lx.src[p.Offset:end], Source: lx.src}
}

func (lx *lexer) advance(n int) {
	for k := 0; k < n && lx.i < len(lx.src); k++ {
		if lx.src[lx.i] == '\n' {
			lx.line++
			lx.col = 1
		} else if lx.src[lx.i]&0xC0 != 0x80 {
			lx.col++
		}
		lx.i++
	}
}

func (lx *lexer) skipSpaceAndComments() error {
	for lx.i < len(lx.src) {
		c := lx.src[lx.i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			lx.advance(1)
		case strings.HasPrefix(lx.src[lx.i:], "//"):
			for lx.i < len(lx.src) && lx.src[lx.i] != '\n' {
				lx.advance(1)
			}
		case strings.HasPrefix(lx.src[lx.i:], "/*"):
			start := lx.pos()
			end := strings.Index(lx.src[lx.i+2:], "*/")
			if end < 0 {
				return lx.errorf(start, "unterminated block comment")
			}
			lx.advance(end + 4)
		default:
			return nil
		}
	}
	return nil
}

func (lx *lexer) next() (token, error) {
	if err := lx.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	start := lx.pos()
	if lx.i >= len(lx.src) {
		return token{kind: tokEOF, pos: start, end: lx.i}, nil
	}
	c := lx.src[lx.i]
	switch {
	case c == '"':
		s, err := lx.quoted('"')
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, val: s, pos: start, end: lx.i}, nil
	case c == 'r' && lx.i+1 < len(lx.src) && (lx.src[lx.i+1] == '"' || lx.src[lx.i+1] == '#'):
		if s, ok, err := lx.rawString(); ok || err != nil {
			if err != nil {
				return token{}, err
			}
			return token{kind: tokString, val: s, pos: start, end: lx.i}, nil
		}
		return lx.ident(start), nil
	case c == '\'' && lx.isLifetime():
		lx.advance(1)
		t := lx.ident(start)
		t.val = "'" + t.val
		return t, nil
	case c == '\'':
		s, err := lx.quoted('\'')
		if err != nil {
			return token{}, err
		}
		if utf8.RuneCountInString(s) != 1 {
			return token{}, lx.errorf(start, "char literal must hold exactly one character")
		}
		return token{kind: tokChar, val: s, pos: start, end: lx.i}, nil
	case isDigit(c):
		return lx.number(start)
	case c == '_' || c >= utf8.RuneSelf || isAlpha(c):
		r, _ := utf8.DecodeRuneInString(lx.src[lx.i:])
		if r == '_' || unicode.IsLetter(r) {
			return lx.ident(start), nil
		}
	}
	for _, p := range puncts {
		if strings.HasPrefix(lx.src[lx.i:], p) {
			lx.advance(len(p))
			return token{kind: tokPunct, val: p, pos: start, end: lx.i}, nil
		}
	}
	return token{}, lx.errorf(start, "unexpected character")
}

// isLifetime reports whether the quote at lx.i starts a lifetime such as 'a
// (kept for type parameter lists) rather than a char literal.
func (lx *lexer) isLifetime() bool {
	r, size := utf8.DecodeRuneInString(lx.src[lx.i+1:])
	if r != '_' && !unicode.IsLetter(r) {
		return false
	}
	// 'a is a lifetime, 'a' and 'ab' are char literals.
	j := lx.i + 1 + size
	for j < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[j:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		j += size
	}
	return j >= len(lx.src) || lx.src[j] != '\''
}

func (lx *lexer) ident(start Pos) token {
	j := lx.i
	for j < len(lx.src) {
		r, size := utf8.DecodeRuneInString(lx.src[j:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		j += size
	}
	val := lx.src[lx.i:j]
	lx.advance(j - lx.i)
	return token{kind: tokIdent, val: val, pos: start, end: lx.i}
}

func (lx *lexer) number(start Pos) (token, error) {
	j := lx.i
	for j < len(lx.src) && (isDigit(lx.src[j]) || lx.src[j] == '_') {
		j++
	}
	kind := tokInt
	// A dot starts a fraction only when a digit follows, so 1..5 stays a range.
	if j+1 < len(lx.src) && lx.src[j] == '.' && isDigit(lx.src[j+1]) {
		kind = tokFloat
		j++
		for j < len(lx.src) && (isDigit(lx.src[j]) || lx.src[j] == '_') {
			j++
		}
	}
	if j < len(lx.src) && (lx.src[j] == 'e' || lx.src[j] == 'E') {
		k := j + 1
		if k < len(lx.src) && (lx.src[k] == '+' || lx.src[k] == '-') {
			k++
		}
		if k < len(lx.src) && isDigit(lx.src[k]) {
			kind = tokFloat
			for k < len(lx.src) && isDigit(lx.src[k]) {
				k++
			}
			j = k
		}
	}
	val := strings.ReplaceAll(lx.src[lx.i:j], "_", "")
	lx.advance(j - lx.i)
	if j < len(lx.src) && (isAlpha(lx.src[j]) || lx.src[j] == '_') {
		return token{}, lx.errorf(start, "invalid numeric literal")
	}
	return token{kind: kind, val: val, pos: start, end: lx.i}, nil
}

// quoted reads a string or char literal delimited by q, decoding escapes.
func (lx *lexer) quoted(q byte) (string, error) {
	start := lx.pos()
	lx.advance(1)
	var sb strings.Builder
	for {
		if lx.i >= len(lx.src) {
			return "", lx.errorf(start, "unterminated literal")
		}
		c := lx.src[lx.i]
		if c == q {
			lx.advance(1)
			return sb.String(), nil
		}
		if c != '\\' {
			_, size := utf8.DecodeRuneInString(lx.src[lx.i:])
			sb.WriteString(lx.src[lx.i : lx.i+size])
			lx.advance(size)
			continue
		}
		escPos := lx.pos()
		if lx.i+1 >= len(lx.src) {
			return "", lx.errorf(start, "unterminated literal")
		}
		e := lx.src[lx.i+1]
		lx.advance(2)
		switch e {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case '0':
			sb.WriteByte(0)
		case '\\', '"', '\'':
			sb.WriteByte(e)
		case '\n':
			// Line continuation: skip the newline and leading whitespace.
			for lx.i < len(lx.src) && strings.IndexByte(" \t\r\n", lx.src[lx.i]) >= 0 {
				lx.advance(1)
			}
		case 'u':
			if lx.i >= len(lx.src) || lx.src[lx.i] != '{' {
				return "", lx.errorf(escPos, "expected { after \\u")
			}
			end := strings.IndexByte(lx.src[lx.i:], '}')
			if end < 0 {
				return "", lx.errorf(escPos, "unterminated unicode escape")
			}
			n, err := strconv.ParseUint(lx.src[lx.i+1:lx.i+end], 16, 32)
			if err != nil || !utf8.ValidRune(rune(n)) {
				return "", lx.errorf(escPos, "invalid unicode escape")
			}
			sb.WriteRune(rune(n))
			lx.advance(end + 1)
		default:
			return "", lx.errorf(escPos, "unknown escape sequence")
		}
	}
}

// rawString reads r"..." or r#"..."#. ok is false when the r starts an
// identifier instead.
func (lx *lexer) rawString() (s string, ok bool, err error) {
	start := lx.pos()
	j := lx.i + 1
	hashes := 0
	for j < len(lx.src) && lx.src[j] == '#' {
		hashes++
		j++
	}
	if j >= len(lx.src) || lx.src[j] != '"' {
		return "", false, nil
	}
	closing := "\"" + strings.Repeat("#", hashes)
	end := strings.Index(lx.src[j+1:], closing)
	if end < 0 {
		return "", true, lx.errorf(start, "unterminated raw string")
	}
	s = lx.src[j+1 : j+1+end]
	lx.advance(j + 1 + end + len(closing) - lx.i)
	return s, true, nil
}

func isAlpha(b byte) bool { return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
