package markup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignorePos = cmpopts.IgnoreTypes(Pos{})

func lit(v any) *Lit           { return &Lit{Value: v} }
func ident(name string) *Ident { return &Ident{Name: name} }

func parseNodes(t *testing.T, src string) []Node {
	t.Helper()
	d, err := parseFragmentSource(src)
	require.NoError(t, err)
	return d.Children
}

func TestParseElements(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Node
	}{
		{
			name: "text child",
			src:  `div { "Two" }`,
			want: []Node{&Element{Name: lit("div"), Children: []Node{&Text{Value: "Two"}}}},
		},
		{
			name: "void",
			src:  `br;`,
			want: []Node{&Element{Name: lit("br"), Void: true}},
		},
		{
			name: "string body",
			src:  `p "hi"`,
			want: []Node{&Element{Name: lit("p"), Children: []Node{&Text{Value: "hi"}}}},
		},
		{
			name: "shorthands default to div",
			src:  `.foo.bar#baz {}`,
			want: []Node{&Element{
				Name:    lit("div"),
				ID:      lit("baz"),
				Classes: []Expr{lit("foo"), lit("bar")},
			}},
		},
		{
			name: "attributes",
			src:  `input[type = "checkbox", checked, data-id = id, ..extra];`,
			want: []Node{&Element{
				Name: lit("input"),
				Attributes: []Attribute{
					{Name: lit("type"), Value: lit("checkbox")},
					{Name: lit("checked"), Value: lit(true)},
					{Name: lit("data-id"), Value: ident("id")},
					{Spread: ident("extra")},
				},
				Void: true,
			}},
		},
		{
			name: "dynamic slots",
			src:  `${tag}.{cls}#"main" {}`,
			want: []Node{&Element{
				Name:    ident("tag"),
				ID:      lit("main"),
				Classes: []Expr{ident("cls")},
			}},
		},
		{
			name: "literal tag name",
			src:  `$"my-el";`,
			want: []Node{&Element{Name: lit("my-el"), Void: true}},
		},
		{
			name: "hyphenated tag",
			src:  `my-element {}`,
			want: []Node{&Element{Name: lit("my-element")}},
		},
		{
			name: "numbers and chars",
			src:  `1 'x'`,
			want: []Node{&ExprNode{X: lit(int64(1))}, &Text{Value: "x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseNodes(t, tt.src)
			if diff := cmp.Diff(tt.want, got, ignorePos); diff != "" {
				t.Errorf("AST mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseControlFlow(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Node
	}{
		{
			name: "if else chain",
			src:  `@if a { "A" } else if let Some(x) = b { @x } @else { "C" }`,
			want: []Node{&If{
				Clauses: []IfClause{
					{Test: IfTest{X: ident("a")}, Body: []Node{&Text{Value: "A"}}},
					{
						Test: IfTest{Pattern: &SomePat{Inner: &BindPat{Name: "x"}}, X: ident("b")},
						Body: []Node{&ExprNode{X: ident("x")}},
					},
				},
				Else:    []Node{&Text{Value: "C"}},
				HasElse: true,
			}},
		},
		{
			name: "for",
			src:  `@for (i, x) in xs.iter().enumerate() { @i }`,
			want: []Node{&For{
				Pattern: &TuplePat{Elems: []Pattern{&BindPat{Name: "i"}, &BindPat{Name: "x"}}},
				Iter: &MethodCall{
					X:    &MethodCall{X: ident("xs"), Name: "iter"},
					Name: "enumerate",
				},
				Body: []Node{&ExprNode{X: ident("i")}},
			}},
		},
		{
			name: "match",
			src: `@match n {
				| 0 => { "zero" }
				x if x < 0 => { "neg" },
				1 | 2 => { "few" }
				3..=9 => { "some" }
				_ => { "many" }
			}`,
			want: []Node{&Match{
				X: ident("n"),
				Arms: []MatchArm{
					{Pattern: &LitPat{Value: int64(0)}, Body: []Node{&Text{Value: "zero"}}},
					{
						Pattern: &BindPat{Name: "x"},
						Guard:   &Binary{Op: "<", X: ident("x"), Y: lit(int64(0))},
						Body:    []Node{&Text{Value: "neg"}},
					},
					{
						Pattern: &OrPat{Alts: []Pattern{&LitPat{Value: int64(1)}, &LitPat{Value: int64(2)}}},
						Body:    []Node{&Text{Value: "few"}},
					},
					{
						Pattern: &RangePat{Lo: int64(3), Hi: int64(9), Inclusive: true},
						Body:    []Node{&Text{Value: "some"}},
					},
					{Pattern: &WildcardPat{}, Body: []Node{&Text{Value: "many"}}},
				},
			}},
		},
		{
			name: "let statements",
			src:  `{ let a = 1; let (b, _) = (2, 3); } @let c = a + b;`,
			want: []Node{
				&RawStmt{Stmt: &LetStmt{Pattern: &BindPat{Name: "a"}, Value: lit(int64(1))}},
				&RawStmt{Stmt: &LetStmt{
					Pattern: &TuplePat{Elems: []Pattern{&BindPat{Name: "b"}, &WildcardPat{}}},
					Value:   &TupleLit{Elems: []Expr{lit(int64(2)), lit(int64(3))}},
				}},
				&RawStmt{Stmt: &LetStmt{
					Pattern: &BindPat{Name: "c"},
					Value:   &Binary{Op: "+", X: ident("a"), Y: ident("b")},
				}},
			},
		},
		{
			name: "braced expression",
			src:  `{a * (b + 1)}`,
			want: []Node{&ExprNode{X: &Binary{
				Op: "*",
				X:  ident("a"),
				Y:  &Binary{Op: "+", X: ident("b"), Y: lit(int64(1))},
			}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseNodes(t, tt.src)
			if diff := cmp.Diff(tt.want, got, ignorePos); diff != "" {
				t.Errorf("AST mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		src  string
		want Expr
	}{
		{`-1`, &Unary{Op: "-", X: lit(int64(1))}},
		{`a + b * c`, &Binary{Op: "+", X: ident("a"), Y: &Binary{Op: "*", X: ident("b"), Y: ident("c")}}},
		{`a - b - c`, &Binary{Op: "-", X: &Binary{Op: "-", X: ident("a"), Y: ident("b")}, Y: ident("c")}},
		{`!a && b || c`, &Binary{
			Op: "||",
			X:  &Binary{Op: "&&", X: &Unary{Op: "!", X: ident("a")}, Y: ident("b")},
			Y:  ident("c"),
		}},
		{`t.0.1`, &FieldExpr{X: &FieldExpr{X: ident("t"), Name: "0"}, Name: "1"}},
		{`xs[i + 1]`, &IndexExpr{X: ident("xs"), Index: &Binary{Op: "+", X: ident("i"), Y: lit(int64(1))}}},
		{`0..n`, &RangeExpr{Lo: lit(int64(0)), Hi: ident("n")}},
		{`format!("{}-{}", a, b)`, &Call{Func: "format", Macro: true, Args: []Expr{lit("{}-{}"), ident("a"), ident("b")}}},
		{`markup::doctype()`, &Call{Func: "markup::doctype"}},
		{`xs.iter().collect::<Vec<_>>()`, &MethodCall{X: &MethodCall{X: ident("xs"), Name: "iter"}, Name: "collect"}},
		{`Card { title: t, body }`, &StructLit{Name: "Card", Fields: []FieldInit{
			{Name: "title", Value: ident("t")},
			{Name: "body", Value: ident("body")},
		}}},
		{`if a { 1 } else { 2 }`, &IfExpr{Cond: ident("a"), Then: lit(int64(1)), Else: lit(int64(2))}},
		{`[1, "a", 'c']`, &ArrayLit{Elems: []Expr{lit(int64(1)), lit("a"), lit(Char('c'))}}},
		{`(a,)`, &TupleLit{Elems: []Expr{ident("a")}}},
		{`&mut *x`, &Unary{Op: "&", X: &Unary{Op: "*", X: ident("x")}}},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			p, err := newParser(tt.src)
			require.NoError(t, err)
			got, err := p.parseExpr(false)
			require.NoError(t, err)
			assert.Equal(t, tokEOF, p.peek().kind, "unconsumed input")
			if diff := cmp.Diff(tt.want, got, ignorePos); diff != "" {
				t.Errorf("AST mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDecl(t *testing.T) {
	src := `
#[derive(Debug)]
Page<'a, T: Display>(
	/// The title.
	title: &'a str,
	items: Vec<T>,
) where T: Clone {
	h1 { @title }
}

Footer { "bye" }
`
	decls, err := parseUnit(src)
	require.NoError(t, err)
	require.Len(t, decls, 2)

	page := decls[0]
	assert.Equal(t, "Page", page.Name)
	assert.Equal(t, []string{"#[derive(Debug)]"}, page.Attrs)
	assert.Equal(t, []string{"'a", "T"}, page.TypeParams)
	assert.Equal(t, []Field{{Name: "title", Type: "&'a str"}, {Name: "items", Type: "Vec<T>"}}, page.Fields)
	assert.Equal(t, "T: Clone", page.Where)
	body := "{\n\th1 { @title }\n}"
	assert.Equal(t, len(body), page.SizeHint)

	footer := decls[1]
	assert.Equal(t, "Footer", footer.Name)
	assert.Empty(t, footer.Fields)
	assert.Equal(t, len(`{ "bye" }`), footer.SizeHint)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unclosed block", `T { div { "a" }`, "unterminated {"},
		{"stray token", `T { ) }`, "expected element, text, @ or {"},
		{"missing body", `T { div }`, "expected ;, { or a string after element"},
		{"duplicate template", `T {} T {}`, "template T declared twice"},
		{"bad attribute list", `T { a[href = "x" b]; }`, "expected , or ]"},
		{"chained comparison", `T { {a < b < c} }`, "comparison operators cannot be chained"},
		{"let without semicolon", `T { @let x = 1 }`, "expected ;"},
		{"match without arrow", `T { @match x { 1 { "a" } } }`, "expected =>"},
		{"for without in", `T { @for x of xs {} }`, "expected in"},
		{"duplicate field", `T(a: i32, a: i32) {}`, "duplicate field a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseUnit(tt.src)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.msg, pe.Msg)
			assert.Equal(t, tt.src, pe.Source)
			assert.Positive(t, pe.Pos.Line)
		})
	}
}
