package markup

import (
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ----------------------------- Host expression grammar ----------------------
//
// Precedence, loosest first: range, ||, &&, comparison, + -, * / %, unary,
// postfix (field, method, index, call). noStruct disables struct literals so
// that `@if x { ... }` reads the brace as the clause body.

func (p *parser) parseExpr(noStruct bool) (Expr, error) {
	lo, err := p.parseOr(noStruct)
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if !t.punct("..") && !t.punct("..=") {
		return lo, nil
	}
	p.next()
	hi, err := p.parseOr(noStruct)
	if err != nil {
		return nil, err
	}
	return &RangeExpr{At: t.pos, Lo: lo, Hi: hi, Inclusive: t.val == "..="}, nil
}

func (p *parser) parseOr(noStruct bool) (Expr, error) {
	return p.parseLeftAssoc(noStruct, p.parseAnd, "||")
}

func (p *parser) parseAnd(noStruct bool) (Expr, error) {
	return p.parseLeftAssoc(noStruct, p.parseCompare, "&&")
}

func (p *parser) parseAdditive(noStruct bool) (Expr, error) {
	return p.parseLeftAssoc(noStruct, p.parseMultiplicative, "+", "-")
}

func (p *parser) parseMultiplicative(noStruct bool) (Expr, error) {
	return p.parseLeftAssoc(noStruct, p.parseUnary, "*", "/", "%")
}

func (p *parser) parseLeftAssoc(noStruct bool, operand func(bool) (Expr, error), ops ...string) (Expr, error) {
	x, err := operand(noStruct)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokPunct || !slices.Contains(ops, t.val) {
			return x, nil
		}
		p.next()
		y, err := operand(noStruct)
		if err != nil {
			return nil, err
		}
		x = &Binary{At: t.pos, Op: t.val, X: x, Y: y}
	}
}

var compareOps = []string{"==", "!=", "<", "<=", ">", ">="}

func (p *parser) parseCompare(noStruct bool) (Expr, error) {
	x, err := p.parseAdditive(noStruct)
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind != tokPunct || !slices.Contains(compareOps, t.val) {
		return x, nil
	}
	p.next()
	y, err := p.parseAdditive(noStruct)
	if err != nil {
		return nil, err
	}
	if u := p.peek(); u.kind == tokPunct && slices.Contains(compareOps, u.val) {
		return nil, p.errorf(u, "comparison operators cannot be chained")
	}
	return &Binary{At: t.pos, Op: t.val, X: x, Y: y}, nil
}

func (p *parser) parseUnary(noStruct bool) (Expr, error) {
	t := p.peek()
	if t.punct("-") || t.punct("!") || t.punct("*") || t.punct("&") {
		p.next()
		if t.punct("&") && p.peek().keyword("mut") {
			p.next()
		}
		x, err := p.parseUnary(noStruct)
		if err != nil {
			return nil, err
		}
		return &Unary{At: t.pos, Op: t.val, X: x}, nil
	}
	return p.parsePostfix(noStruct)
}

func (p *parser) parsePostfix(noStruct bool) (Expr, error) {
	x, err := p.parsePrimary(noStruct)
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.punct("."):
			p.next()
			if x, err = p.parseSelector(x); err != nil {
				return nil, err
			}
		case t.punct("["):
			p.next()
			idx, err := p.parseExpr(false)
			if err != nil {
				return nil, err
			}
			if _, err := p.expect("]"); err != nil {
				return nil, err
			}
			x = &IndexExpr{At: t.pos, X: x, Index: idx}
		case t.punct("("):
			id, ok := x.(*Ident)
			if !ok {
				return nil, p.errorf(t, "only named functions can be called")
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = &Call{At: id.At, Func: id.Name, Args: args}
		default:
			return x, nil
		}
	}
}

// parseSelector parses what follows a dot: a field, a method call or a tuple
// index. A float token such as 0.1 is split into two tuple indexes.
func (p *parser) parseSelector(x Expr) (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		if p.peek().punct("::") && p.peekN(1).punct("<") {
			p.next()
			if _, err := p.skipBalanced("<", ">"); err != nil {
				return nil, err
			}
		}
		if p.peek().punct("(") {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return &MethodCall{At: t.pos, X: x, Name: t.val, Args: args}, nil
		}
		return &FieldExpr{At: t.pos, X: x, Name: t.val}, nil
	case tokInt:
		return &FieldExpr{At: t.pos, X: x, Name: t.val}, nil
	case tokFloat:
		if a, b, ok := strings.Cut(t.val, "."); ok && isDigits(a) && isDigits(b) {
			return &FieldExpr{At: t.pos, X: &FieldExpr{At: t.pos, X: x, Name: a}, Name: b}, nil
		}
	}
	return nil, p.errorf(t, "expected field or method name")
}

func (p *parser) parseArgs() ([]Expr, error) {
	p.next()
	var args []Expr
	for !p.peek().punct(")") {
		x, err := p.parseExpr(false)
		if err != nil {
			return nil, err
		}
		args = append(args, x)
		if p.peek().punct(",") {
			p.next()
		} else if !p.peek().punct(")") {
			return nil, p.errorf(p.peek(), "expected , or )")
		}
	}
	p.next()
	return args, nil
}

func (p *parser) parsePrimary(noStruct bool) (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokInt:
		p.next()
		n, err := strconv.ParseInt(t.val, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "integer literal out of range")
		}
		return &Lit{At: t.pos, Value: n}, nil
	case tokFloat:
		p.next()
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid float literal")
		}
		return &Lit{At: t.pos, Value: f}, nil
	case tokString:
		p.next()
		return &Lit{At: t.pos, Value: t.val}, nil
	case tokChar:
		p.next()
		r, _ := utf8.DecodeRuneInString(t.val)
		return &Lit{At: t.pos, Value: Char(r)}, nil
	case tokIdent:
		return p.parseIdentExpr(noStruct)
	}
	switch {
	case t.punct("("):
		return p.parseParenOrTuple()
	case t.punct("["):
		p.next()
		elems, err := p.parseList("]")
		if err != nil {
			return nil, err
		}
		return &ArrayLit{At: t.pos, Elems: elems}, nil
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
	return nil, p.errorf(t, "expected expression")
}

func (p *parser) parseIdentExpr(noStruct bool) (Expr, error) {
	t := p.next()
	switch t.val {
	case "true", "false":
		return &Lit{At: t.pos, Value: t.val == "true"}, nil
	case "if":
		return p.parseIfExpr(t)
	case "let", "else", "in", "match", "for":
		return nil, p.errorf(t, "unexpected keyword "+t.val)
	}
	name := t.val
	for p.peek().punct("::") {
		if p.peekN(1).punct("<") {
			p.next()
			if _, err := p.skipBalanced("<", ">"); err != nil {
				return nil, err
			}
			continue
		}
		seg := p.peekN(1)
		if seg.kind != tokIdent {
			return nil, p.errorf(seg, "expected identifier after ::")
		}
		p.next()
		p.next()
		name += "::" + seg.val
	}
	if p.peek().punct("!") && (p.peekN(1).punct("(") || p.peekN(1).punct("[")) {
		p.next()
		var args []Expr
		var err error
		if p.next().punct("[") {
			args, err = p.parseList("]")
		} else {
			args, err = p.parseList(")")
		}
		if err != nil {
			return nil, err
		}
		return &Call{At: t.pos, Func: name, Args: args, Macro: true}, nil
	}
	if !noStruct && p.peek().punct("{") && isTypeName(name) && p.looksLikeStructBody() {
		return p.parseStructLit(t, name)
	}
	return &Ident{At: t.pos, Name: name}, nil
}

// looksLikeStructBody reports whether the `{` at the cursor opens
// `{}`, `{ name: ...` or `{ name, ...`.
func (p *parser) looksLikeStructBody() bool {
	a, b := p.peekN(1), p.peekN(2)
	if a.punct("}") {
		return true
	}
	return a.kind == tokIdent && (b.punct(":") || b.punct(",") || b.punct("}"))
}

func (p *parser) parseStructLit(t token, name string) (Expr, error) {
	p.next()
	lit := &StructLit{At: t.pos, Name: name}
	for !p.peek().punct("}") {
		field, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		var value Expr = &Ident{At: field.pos, Name: field.val}
		if p.peek().punct(":") {
			p.next()
			if value, err = p.parseExpr(false); err != nil {
				return nil, err
			}
		}
		lit.Fields = append(lit.Fields, FieldInit{Name: field.val, Value: value})
		if p.peek().punct(",") {
			p.next()
		} else if !p.peek().punct("}") {
			return nil, p.errorf(p.peek(), "expected , or }")
		}
	}
	p.next()
	return lit, nil
}

func (p *parser) parseIfExpr(t token) (Expr, error) {
	cond, err := p.parseExpr(true)
	if err != nil {
		return nil, err
	}
	then, err := p.parseBracedExpr()
	if err != nil {
		return nil, err
	}
	n := &IfExpr{At: t.pos, Cond: cond, Then: then}
	if !p.peek().keyword("else") {
		return n, nil
	}
	p.next()
	if p.peek().keyword("if") {
		n.Else, err = p.parseIfExpr(p.next())
		return n, err
	}
	n.Else, err = p.parseBracedExpr()
	return n, err
}

func (p *parser) parseBracedExpr() (Expr, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}
	x, err := p.parseExpr(false)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return x, nil
}

func (p *parser) parseParenOrTuple() (Expr, error) {
	open := p.next()
	if p.peek().punct(")") {
		p.next()
		return &TupleLit{At: open.pos}, nil
	}
	first, err := p.parseExpr(false)
	if err != nil {
		return nil, err
	}
	if p.peek().punct(")") {
		p.next()
		return first, nil
	}
	if _, err := p.expect(","); err != nil {
		return nil, err
	}
	rest, err := p.parseList(")")
	if err != nil {
		return nil, err
	}
	return &TupleLit{At: open.pos, Elems: append([]Expr{first}, rest...)}, nil
}

// parseList parses comma-separated expressions up to and including the
// closing delimiter. A trailing comma is allowed.
func (p *parser) parseList(closing string) ([]Expr, error) {
	var elems []Expr
	for !p.peek().punct(closing) {
		x, err := p.parseExpr(false)
		if err != nil {
			return nil, err
		}
		elems = append(elems, x)
		if p.peek().punct(",") {
			p.next()
		} else if !p.peek().punct(closing) {
			return nil, p.errorf(p.peek(), "expected , or "+closing)
		}
	}
	p.next()
	return elems, nil
}

// ----------------------------- Patterns -------------------------------------

func (p *parser) parsePattern() (Pattern, error) {
	start := p.peek()
	first, err := p.parsePatternAtom()
	if err != nil {
		return nil, err
	}
	if !p.peek().punct("|") {
		return first, nil
	}
	or := &OrPat{At: start.pos, Alts: []Pattern{first}}
	for p.peek().punct("|") {
		p.next()
		alt, err := p.parsePatternAtom()
		if err != nil {
			return nil, err
		}
		or.Alts = append(or.Alts, alt)
	}
	return or, nil
}

func (p *parser) parsePatternAtom() (Pattern, error) {
	t := p.peek()
	switch {
	case t.punct("&"):
		p.next()
		return p.parsePatternAtom()
	case t.punct("("):
		p.next()
		var elems []Pattern
		trailingComma := false
		for !p.peek().punct(")") {
			pat, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			elems = append(elems, pat)
			trailingComma = false
			if p.peek().punct(",") {
				p.next()
				trailingComma = true
			} else if !p.peek().punct(")") {
				return nil, p.errorf(p.peek(), "expected , or )")
			}
		}
		p.next()
		if len(elems) == 1 && !trailingComma {
			return elems[0], nil
		}
		return &TuplePat{At: t.pos, Elems: elems}, nil
	case t.punct("["):
		p.next()
		sp := &SlicePat{At: t.pos}
		for !p.peek().punct("]") {
			if p.peek().punct("..") {
				p.next()
				sp.Rest = true
				if !p.peek().punct("]") {
					return nil, p.errorf(p.peek(), ".. must be the last element of a slice pattern")
				}
				break
			}
			pat, err := p.parsePattern()
			if err != nil {
				return nil, err
			}
			sp.Elems = append(sp.Elems, pat)
			if p.peek().punct(",") {
				p.next()
			} else if !p.peek().punct("]") {
				return nil, p.errorf(p.peek(), "expected , or ]")
			}
		}
		p.next()
		return sp, nil
	case t.kind == tokIdent:
		return p.parseIdentPattern()
	}
	lo, err := p.parsePatternLiteral()
	if err != nil {
		return nil, err
	}
	r := p.peek()
	if !r.punct("..") && !r.punct("..=") {
		return &LitPat{At: t.pos, Value: lo}, nil
	}
	p.next()
	hi, err := p.parsePatternLiteral()
	if err != nil {
		return nil, err
	}
	return &RangePat{At: t.pos, Lo: lo, Hi: hi, Inclusive: r.val == "..="}, nil
}

func (p *parser) parseIdentPattern() (Pattern, error) {
	t := p.next()
	switch t.val {
	case "_":
		return &WildcardPat{At: t.pos}, nil
	case "true", "false":
		return &LitPat{At: t.pos, Value: t.val == "true"}, nil
	case "None":
		return &NonePat{At: t.pos}, nil
	case "Some":
		if _, err := p.expect("("); err != nil {
			return nil, err
		}
		inner, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(")"); err != nil {
			return nil, err
		}
		return &SomePat{At: t.pos, Inner: inner}, nil
	case "ref", "mut":
		if p.peek().kind == tokIdent {
			return p.parseIdentPattern()
		}
	}
	if strings.HasPrefix(t.val, "'") {
		return nil, p.errorf(t, "expected pattern")
	}
	return &BindPat{At: t.pos, Name: t.val}, nil
}

func (p *parser) parsePatternLiteral() (any, error) {
	t := p.peek()
	neg := false
	if t.punct("-") {
		neg = true
		p.next()
		t = p.peek()
		if t.kind != tokInt && t.kind != tokFloat {
			return nil, p.errorf(t, "expected number after -")
		}
	}
	switch t.kind {
	case tokInt, tokFloat, tokString, tokChar:
		x, err := p.parsePrimary(true)
		if err != nil {
			return nil, err
		}
		v := x.(*Lit).Value
		if neg {
			switch n := v.(type) {
			case int64:
				v = -n
			case float64:
				v = -n
			}
		}
		return v, nil
	}
	return nil, p.errorf(t, "expected pattern")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// isTypeName reports whether name is spelled like a type: its last path
// segment starts with an upper-case letter.
func isTypeName(name string) bool {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
