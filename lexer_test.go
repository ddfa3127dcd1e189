package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lexed struct {
	kind tokenKind
	val  string
}

func lex(t *testing.T, src string) []lexed {
	t.Helper()
	toks, err := tokenize(src)
	require.NoError(t, err)
	out := make([]lexed, 0, len(toks))
	for _, tok := range toks {
		if tok.kind == tokEOF {
			break
		}
		out = append(out, lexed{tok.kind, tok.val})
	}
	return out
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []lexed
	}{
		{
			name: "element",
			src:  `div.a#b { "x" }`,
			want: []lexed{
				{tokIdent, "div"}, {tokPunct, "."}, {tokIdent, "a"}, {tokPunct, "#"}, {tokIdent, "b"},
				{tokPunct, "{"}, {tokString, "x"}, {tokPunct, "}"},
			},
		},
		{
			name: "ranges stay ranges",
			src:  `1..5 0..=9 1.5`,
			want: []lexed{
				{tokInt, "1"}, {tokPunct, ".."}, {tokInt, "5"},
				{tokInt, "0"}, {tokPunct, "..="}, {tokInt, "9"},
				{tokFloat, "1.5"},
			},
		},
		{
			name: "numbers",
			src:  `1_000 2e3 7.25E-2`,
			want: []lexed{{tokInt, "1000"}, {tokFloat, "2e3"}, {tokFloat, "7.25E-2"}},
		},
		{
			name: "operators longest first",
			src:  `a==b&&c!=d=>e::f`,
			want: []lexed{
				{tokIdent, "a"}, {tokPunct, "=="}, {tokIdent, "b"}, {tokPunct, "&&"},
				{tokIdent, "c"}, {tokPunct, "!="}, {tokIdent, "d"}, {tokPunct, "=>"},
				{tokIdent, "e"}, {tokPunct, "::"}, {tokIdent, "f"},
			},
		},
		{
			name: "comments",
			src:  "a // line\n/* block\n */ b",
			want: []lexed{{tokIdent, "a"}, {tokIdent, "b"}},
		},
		{
			name: "string escapes",
			src:  `"a\n\t\"b\" \u{1F600}"`,
			want: []lexed{{tokString, "a\n\t\"b\" \U0001F600"}},
		},
		{
			name: "raw strings",
			src:  `r"a\n" r#"say "hi""#`,
			want: []lexed{{tokString, `a\n`}, {tokString, `say "hi"`}},
		},
		{
			name: "chars and lifetimes",
			src:  `'x' '\n' 'a`,
			want: []lexed{{tokChar, "x"}, {tokChar, "\n"}, {tokIdent, "'a"}},
		},
		{
			name: "long lifetimes",
			src:  `'static 'é' 'a_1>`,
			want: []lexed{{tokIdent, "'static"}, {tokChar, "é"}, {tokIdent, "'a_1"}, {tokPunct, ">"}},
		},
		{
			name: "unicode identifier",
			src:  `größe`,
			want: []lexed{{tokIdent, "größe"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lex(t, tt.src))
		})
	}
}

func TestTokenizePositions(t *testing.T) {
	toks, err := tokenize("a\n  b")
	require.NoError(t, err)
	require.Len(t, toks, 3)
	assert.Equal(t, Pos{Offset: 0, Line: 1, Column: 1}, toks[0].pos)
	assert.Equal(t, Pos{Offset: 4, Line: 2, Column: 3}, toks[1].pos)
	assert.Equal(t, 5, toks[1].end)
	assert.Equal(t, tokEOF, toks[2].kind)
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		src, msg string
	}{
		{`"open`, "unterminated literal"},
		{`/* open`, "unterminated block comment"},
		{`'ab'`, "char literal must hold exactly one character"},
		{`x = 'abc';`, "char literal must hold exactly one character"},
		{`"\q"`, "unknown escape sequence"},
		{`12px`, "invalid numeric literal"},
		{`a ~ b`, "unexpected character"},
		{`r#"open`, "unterminated raw string"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := tokenize(tt.src)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.msg, pe.Msg)
		})
	}
}
