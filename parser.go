package markup

import (
	"strings"
)

// ----------------------------- Parser ---------------------------------------

// parser is a recursive-descent parser over the token stream. It is a small
// value type so that a lookahead attempt can run on a copy and be committed
// by assignment.
type parser struct {
	src  string
	toks []token
	i    int
}

func newParser(src string) (*parser, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	return &parser{src: src, toks: toks}, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) peekN(n int) token {
	if p.i+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+n]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// prevEnd is the end offset of the last consumed token.
func (p *parser) prevEnd() int {
	if p.i == 0 {
		return 0
	}
	return p.toks[p.i-1].end
}

func (p *parser) errorf(t token, msg string) error {
	near := ""
	if t.kind != tokEOF {
		near = p.src[t.pos.Offset:t.end]
	}
	return &ParseError{Pos: t.pos, Msg: msg, Near: near, Source: p.src}
}

func (p *parser) expect(punct string) (token, error) {
	t := p.peek()
	if !t.punct(punct) {
		return t, p.errorf(t, "expected "+punct)
	}
	return p.next(), nil
}

func (p *parser) expectKeyword(kw string) (token, error) {
	t := p.peek()
	if !t.keyword(kw) {
		return t, p.errorf(t, "expected "+kw)
	}
	return p.next(), nil
}

func (p *parser) expectIdent() (token, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return t, p.errorf(t, "expected identifier")
	}
	return p.next(), nil
}

// parseUnit parses a sequence of named template declarations.
func parseUnit(src string) ([]*Decl, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	var decls []*Decl
	seen := make(map[string]bool)
	for p.peek().kind != tokEOF {
		start := p.peek()
		d, err := p.parseDecl()
		if err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, p.errorf(start, "template "+d.Name+" declared twice")
		}
		seen[d.Name] = true
		decls = append(decls, d)
	}
	return decls, nil
}

// parseFragmentSource parses a bare node sequence, the body of an anonymous
// template.
func parseFragmentSource(src string) (*Decl, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	d := &Decl{At: p.peek().pos}
	first := p.peek().pos.Offset
	for p.peek().kind != tokEOF {
		if p.peek().punct("}") {
			return nil, p.errorf(p.peek(), "unexpected }")
		}
		nodes, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		d.Children = append(d.Children, nodes...)
	}
	d.SizeHint = sizeHint(first, p.prevEnd())
	return d, nil
}

func (p *parser) parseDecl() (*Decl, error) {
	d := &Decl{At: p.peek().pos}
	for p.peek().punct("#") && p.peekN(1).punct("[") {
		start := p.next().pos.Offset
		end, err := p.skipBalanced("[", "]")
		if err != nil {
			return nil, err
		}
		d.Attrs = append(d.Attrs, p.src[start:end])
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	d.Name = name.val
	if p.peek().punct("<") {
		if d.TypeParams, err = p.parseTypeParams(); err != nil {
			return nil, err
		}
	}
	if p.peek().punct("(") {
		if d.Fields, err = p.parseFields(); err != nil {
			return nil, err
		}
	}
	if p.peek().keyword("where") {
		start := p.next().end
		for !p.peek().punct("{") {
			if p.peek().kind == tokEOF {
				return nil, p.errorf(p.peek(), "expected { after where clause")
			}
			p.next()
		}
		d.Where = strings.TrimSpace(p.src[start:p.peek().pos.Offset])
	}
	open := p.peek()
	children, closing, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	d.Children = children
	d.SizeHint = sizeHint(open.pos.Offset, closing.end)
	return d, nil
}

// skipBalanced consumes tokens from an opening delimiter to its matching
// closing one and returns the end offset of the closing token.
func (p *parser) skipBalanced(open, closing string) (int, error) {
	first, err := p.expect(open)
	if err != nil {
		return 0, err
	}
	depth := 1
	for depth > 0 {
		t := p.next()
		switch {
		case t.kind == tokEOF:
			return 0, p.errorf(first, "unterminated "+open)
		case t.punct(open):
			depth++
		case t.punct(closing):
			depth--
		}
	}
	return p.prevEnd(), nil
}

func (p *parser) parseTypeParams() ([]string, error) {
	p.next()
	var names []string
	for {
		t := p.peek()
		if t.punct(">") {
			p.next()
			return names, nil
		}
		if t.kind != tokIdent {
			return nil, p.errorf(t, "expected type parameter")
		}
		names = append(names, t.val)
		p.next()
		if err := p.skipType(">"); err != nil {
			return nil, err
		}
		if p.peek().punct(",") {
			p.next()
		}
	}
}

// skipType consumes tokens up to a top-level comma or the given terminator.
func (p *parser) skipType(terminator string) error {
	depth := 0
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return p.errorf(t, "unterminated type")
		case depth == 0 && (t.punct(",") || t.punct(terminator)):
			return nil
		case t.punct("<") || t.punct("(") || t.punct("["):
			depth++
		case t.punct(">") || t.punct(")") || t.punct("]"):
			depth--
		}
		p.next()
	}
}

func (p *parser) parseFields() ([]Field, error) {
	p.next()
	var fields []Field
	seen := make(map[string]bool)
	for !p.peek().punct(")") {
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if seen[name.val] {
			return nil, p.errorf(name, "duplicate field "+name.val)
		}
		seen[name.val] = true
		if _, err := p.expect(":"); err != nil {
			return nil, err
		}
		start := p.peek()
		if err := p.skipType(")"); err != nil {
			return nil, err
		}
		if p.peek().pos.Offset == start.pos.Offset {
			return nil, p.errorf(start, "expected type")
		}
		fields = append(fields, Field{Name: name.val, Type: p.src[start.pos.Offset:p.prevEnd()]})
		if p.peek().punct(",") {
			p.next()
		} else if !p.peek().punct(")") {
			return nil, p.errorf(p.peek(), "expected , or )")
		}
	}
	p.next()
	return fields, nil
}

// parseBlock parses `{ nodes }` and returns the closing brace token.
func (p *parser) parseBlock() ([]Node, token, error) {
	open, err := p.expect("{")
	if err != nil {
		return nil, open, err
	}
	var nodes []Node
	for !p.peek().punct("}") {
		if p.peek().kind == tokEOF {
			return nil, open, p.errorf(open, "unterminated {")
		}
		ns, err := p.parseNode()
		if err != nil {
			return nil, open, err
		}
		nodes = append(nodes, ns...)
	}
	return nodes, p.next(), nil
}

func (p *parser) parseNode() ([]Node, error) {
	t := p.peek()
	switch {
	case t.kind == tokIdent || t.punct("#") || t.punct(".") || t.punct("$"):
		el, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		return []Node{el}, nil
	case t.punct("@"):
		return p.parseAt()
	case t.kind == tokString || t.kind == tokChar:
		p.next()
		return []Node{&Text{At: t.pos, Value: t.val}}, nil
	case t.kind == tokInt || t.kind == tokFloat:
		x, err := p.parsePrimary(false)
		if err != nil {
			return nil, err
		}
		return []Node{&ExprNode{At: t.pos, X: x}}, nil
	case t.punct("{"):
		return p.parseBraced()
	}
	return nil, p.errorf(t, "expected element, text, @ or {")
}

func (p *parser) parseAt() ([]Node, error) {
	at := p.next()
	t := p.peek()
	switch {
	case t.keyword("if"):
		p.next()
		n, err := p.parseIf(at)
		return []Node{n}, err
	case t.keyword("for"):
		p.next()
		n, err := p.parseFor(at)
		return []Node{n}, err
	case t.keyword("match"):
		p.next()
		n, err := p.parseMatch(at)
		return []Node{n}, err
	}
	fork := *p
	stmt, err := fork.parseStmt()
	if err == nil {
		*p = fork
		return []Node{&RawStmt{At: at.pos, Stmt: stmt}}, nil
	}
	if t.keyword("let") {
		return nil, err
	}
	x, err := p.parseExpr(false)
	if err != nil {
		return nil, err
	}
	return []Node{&ExprNode{At: at.pos, X: x}}, nil
}

// parseBraced handles `{ ... }` at node level: one or more statements become
// RawStmt nodes, anything else must be a single expression.
func (p *parser) parseBraced() ([]Node, error) {
	open := p.peek()
	fork := *p
	fork.next()
	var raws []Node
	for {
		stmt, err := fork.parseStmt()
		if err != nil {
			break
		}
		raws = append(raws, &RawStmt{At: stmt.At, Stmt: stmt})
		if fork.peek().punct("}") {
			fork.next()
			*p = fork
			return raws, nil
		}
	}
	p.next()
	x, err := p.parseExpr(false)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return []Node{&ExprNode{At: open.pos, X: x}}, nil
}

func (p *parser) parseStmt() (*LetStmt, error) {
	kw, err := p.expectKeyword("let")
	if err != nil {
		return nil, err
	}
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("="); err != nil {
		return nil, err
	}
	x, err := p.parseExpr(false)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(";"); err != nil {
		return nil, err
	}
	return &LetStmt{At: kw.pos, Pattern: pat, Value: x}, nil
}

// ----------------------------- Elements -------------------------------------

func (p *parser) parseElement() (*Element, error) {
	t := p.peek()
	el := &Element{At: t.pos}
	var err error
	switch {
	case t.kind == tokIdent:
		el.Name = &Lit{At: t.pos, Value: p.parseName()}
	case t.punct("$"):
		p.next()
		if el.Name, err = p.parseSlot(); err != nil {
			return nil, err
		}
	default:
		el.Name = &Lit{At: t.pos, Value: "div"}
	}
	for {
		t := p.peek()
		if !t.punct("#") && !t.punct(".") {
			break
		}
		p.next()
		v, err := p.parseSlot()
		if err != nil {
			return nil, err
		}
		if t.punct("#") {
			el.ID = v
		} else {
			el.Classes = append(el.Classes, v)
		}
	}
	if p.peek().punct("[") {
		if el.Attributes, err = p.parseAttributes(); err != nil {
			return nil, err
		}
	}
	t = p.peek()
	switch {
	case t.punct(";"):
		p.next()
		el.Void = true
	case t.punct("{"):
		if el.Children, _, err = p.parseBlock(); err != nil {
			return nil, err
		}
	case t.kind == tokString:
		p.next()
		el.Children = []Node{&Text{At: t.pos, Value: t.val}}
	default:
		return nil, p.errorf(t, "expected ;, { or a string after element")
	}
	return el, nil
}

// parseName reads an identifier, joining directly adjacent `-ident` parts so
// that data-id or my-element can be written bare.
func (p *parser) parseName() string {
	var sb strings.Builder
	sb.WriteString(p.next().val)
	for {
		dash, part := p.peek(), p.peekN(1)
		if !dash.punct("-") || dash.pos.Offset != p.prevEnd() || part.pos.Offset != dash.end ||
			(part.kind != tokIdent && part.kind != tokInt) {
			return sb.String()
		}
		p.next()
		p.next()
		sb.WriteByte('-')
		sb.WriteString(part.val)
	}
}

// parseSlot reads a name, id or class value: an identifier, a string literal
// or a braced expression.
func (p *parser) parseSlot() (Expr, error) {
	t := p.peek()
	switch {
	case t.kind == tokIdent:
		return &Lit{At: t.pos, Value: p.parseName()}, nil
	case t.kind == tokString:
		p.next()
		return &Lit{At: t.pos, Value: t.val}, nil
	case t.punct("{"):
		p.next()
		x, err := p.parseExpr(false)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect("}"); err != nil {
			return nil, err
		}
		return x, nil
	}
	return nil, p.errorf(t, "expected identifier, string or {expression}")
}

func (p *parser) parseAttributes() ([]Attribute, error) {
	p.next()
	var attrs []Attribute
	for !p.peek().punct("]") {
		t := p.peek()
		if t.kind == tokEOF {
			return nil, p.errorf(t, "unterminated attribute list")
		}
		if t.punct("..") {
			p.next()
			x, err := p.parseExpr(false)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, Attribute{At: t.pos, Spread: x})
		} else {
			name, err := p.parseSlot()
			if err != nil {
				return nil, err
			}
			if p.peek().punct("?") {
				p.next()
			}
			var value Expr = &Lit{At: t.pos, Value: true}
			if p.peek().punct("=") {
				p.next()
				if value, err = p.parseExpr(false); err != nil {
					return nil, err
				}
			}
			attrs = append(attrs, Attribute{At: t.pos, Name: name, Value: value})
		}
		if p.peek().punct(",") {
			p.next()
		} else if !p.peek().punct("]") {
			return nil, p.errorf(p.peek(), "expected , or ]")
		}
	}
	p.next()
	return attrs, nil
}

// ----------------------------- Control flow ---------------------------------

func (p *parser) parseIf(at token) (*If, error) {
	n := &If{At: at.pos}
	for {
		test, err := p.parseIfTest()
		if err != nil {
			return nil, err
		}
		body, _, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		n.Clauses = append(n.Clauses, IfClause{Test: test, Body: body})
		if !p.consumeElse() {
			return n, nil
		}
		if p.peek().keyword("if") {
			p.next()
			continue
		}
		if n.Else, _, err = p.parseBlock(); err != nil {
			return nil, err
		}
		n.HasElse = true
		return n, nil
	}
}

// consumeElse accepts both `else` and `@else` after a clause body.
func (p *parser) consumeElse() bool {
	if p.peek().keyword("else") {
		p.next()
		return true
	}
	if p.peek().punct("@") && p.peekN(1).keyword("else") {
		p.next()
		p.next()
		return true
	}
	return false
}

func (p *parser) parseIfTest() (IfTest, error) {
	if !p.peek().keyword("let") {
		x, err := p.parseExpr(true)
		return IfTest{X: x}, err
	}
	p.next()
	pat, err := p.parsePattern()
	if err != nil {
		return IfTest{}, err
	}
	if _, err := p.expect("="); err != nil {
		return IfTest{}, err
	}
	x, err := p.parseExpr(true)
	return IfTest{Pattern: pat, X: x}, err
}

func (p *parser) parseMatch(at token) (*Match, error) {
	x, err := p.parseExpr(true)
	if err != nil {
		return nil, err
	}
	open, err := p.expect("{")
	if err != nil {
		return nil, err
	}
	n := &Match{At: at.pos, X: x}
	for !p.peek().punct("}") {
		if p.peek().kind == tokEOF {
			return nil, p.errorf(open, "unterminated match")
		}
		if p.peek().punct("|") {
			p.next()
		}
		var arm MatchArm
		if arm.Pattern, err = p.parsePattern(); err != nil {
			return nil, err
		}
		if p.peek().keyword("if") {
			p.next()
			if arm.Guard, err = p.parseExpr(true); err != nil {
				return nil, err
			}
		}
		if _, err := p.expect("=>"); err != nil {
			return nil, err
		}
		if arm.Body, _, err = p.parseBlock(); err != nil {
			return nil, err
		}
		if p.peek().punct(",") {
			p.next()
		}
		n.Arms = append(n.Arms, arm)
	}
	p.next()
	return n, nil
}

func (p *parser) parseFor(at token) (*For, error) {
	pat, err := p.parsePattern()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("in"); err != nil {
		return nil, err
	}
	iter, err := p.parseExpr(true)
	if err != nil {
		return nil, err
	}
	body, _, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &For{At: at.pos, Pattern: pat, Iter: iter, Body: body}, nil
}
