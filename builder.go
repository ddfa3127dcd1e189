package markup

import (
	"maps"
	"strings"
	"unicode"
)

// ----------------------------- Builder --------------------------------------
//
// The builder walks a template body once and produces its write program.
// Static output (tag punctuation, static names, text) accumulates in a
// pending buffer and is flushed as a single textOp whenever a dynamic op has
// to be emitted, so adjacent static pieces never cost more than one write.

type builder struct {
	src            string
	funcs          Funcs
	lookupTemplate func(name string) *Template

	scope  *scope
	nslots int

	buf strings.Builder
	ops program
}

// scope maps visible names to frame slots. Every declaration gets a fresh
// slot, so shadowing never clobbers an outer binding.
type scope struct {
	parent *scope
	names  map[string]int
}

func newBuilder(src string, funcs Funcs, lookup func(string) *Template) *builder {
	b := &builder{src: src, funcs: funcs, lookupTemplate: lookup}
	b.push()
	return b
}

func (b *builder) push() { b.scope = &scope{parent: b.scope, names: make(map[string]int)} }

func (b *builder) pop() { b.scope = b.scope.parent }

func (b *builder) alloc() int {
	s := b.nslots
	b.nslots++
	return s
}

func (b *builder) declare(name string) int {
	s := b.alloc()
	b.scope.names[name] = s
	return s
}

func (b *builder) bind(binds map[string]int) { maps.Copy(b.scope.names, binds) }

func (b *builder) lookup(name string) (int, bool) {
	for s := b.scope; s != nil; s = s.parent {
		if slot, ok := s.names[name]; ok {
			return slot, true
		}
	}
	return 0, false
}

// ----------------------------- Diagnostics ----------------------------------

func (b *builder) errorf(pos Pos, msg string) error {
	return &ParseError{Pos: pos, Msg: msg, Near: b.near(pos), Source: b.src}
}

// near is the word of source starting at pos.
func (b *builder) near(pos Pos) string {
	if pos.Offset >= len(b.src) {
		return ""
	}
	rest := b.src[pos.Offset:]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	return rest[:min(end, 24)]
}

// snippet is the rest of the source line at pos, shortened.
func (b *builder) snippet(pos Pos) string {
	if pos.Offset >= len(b.src) {
		return ""
	}
	rest := b.src[pos.Offset:]
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	if len(rest) > 40 {
		rest = rest[:40]
	}
	return strings.TrimSpace(rest)
}

func (b *builder) site(pos Pos) site { return site{pos: pos, expr: b.snippet(pos)} }

// ----------------------------- Emission -------------------------------------

// raw appends markup punctuation as is.
func (b *builder) raw(s string) { b.buf.WriteString(s) }

// literal appends static text through the escaper.
func (b *builder) literal(s string) { _ = EscapeTo(&b.buf, s) }

func (b *builder) flush() {
	if b.buf.Len() == 0 {
		return
	}
	b.ops = append(b.ops, textOp{text: b.buf.String()})
	b.buf.Reset()
}

func (b *builder) emit(o op) {
	b.flush()
	b.ops = append(b.ops, o)
}

// dynamic renders a host expression. Literals are rendered at build time.
func (b *builder) dynamic(x Expr) error {
	if v, ok := staticValue(x); ok {
		_ = Render(&b.buf, v)
		return nil
	}
	fn, err := b.compileExpr(x)
	if err != nil {
		return err
	}
	b.emit(exprOp{fn: fn})
	return nil
}

// sub builds nodes as an independent program in a new scope holding binds.
func (b *builder) sub(nodes []Node, binds map[string]int) (program, error) {
	b.flush()
	saved := b.ops
	b.ops = nil
	b.push()
	b.bind(binds)
	err := b.buildNodes(nodes)
	b.flush()
	b.pop()
	prog := b.ops
	b.ops = saved
	return prog, err
}

// ----------------------------- Nodes ----------------------------------------

func (b *builder) buildNodes(nodes []Node) error {
	for _, n := range nodes {
		if err := b.buildNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildNode(n Node) error {
	switch x := n.(type) {
	case *Text:
		b.literal(x.Value)
		return nil
	case *ExprNode:
		return b.dynamic(x.X)
	case *Element:
		return b.buildElement(x)
	case *If:
		return b.buildIf(x)
	case *Match:
		return b.buildMatch(x)
	case *For:
		return b.buildFor(x)
	case *RawStmt:
		return b.buildLet(x)
	}
	return nil
}

func (b *builder) buildElement(e *Element) error {
	b.raw("<")
	name, static := staticValue(e.Name)
	nameSlot := -1
	if static {
		b.literal(toText(name))
	} else {
		fn, err := b.compileExpr(e.Name)
		if err != nil {
			return err
		}
		nameSlot = b.alloc()
		b.emit(tagNameOp{fn: fn, slot: nameSlot})
	}
	if e.ID != nil {
		b.raw(` id="`)
		if err := b.dynamic(e.ID); err != nil {
			return err
		}
		b.raw(`"`)
	}
	if len(e.Classes) > 0 {
		b.raw(` class="`)
		for i, c := range e.Classes {
			if i > 0 {
				b.raw(" ")
			}
			if err := b.dynamic(c); err != nil {
				return err
			}
		}
		b.raw(`"`)
	}
	for _, a := range e.Attributes {
		if err := b.buildAttribute(a); err != nil {
			return err
		}
	}
	b.raw(">")
	if e.Void {
		return nil
	}
	b.push()
	err := b.buildNodes(e.Children)
	b.pop()
	if err != nil {
		return err
	}
	b.raw("</")
	if static {
		b.literal(toText(name))
	} else {
		b.emit(closeNameOp{slot: nameSlot})
	}
	b.raw(">")
	return nil
}

func (b *builder) buildAttribute(a Attribute) error {
	if a.Spread != nil {
		fn, err := b.compileExpr(a.Spread)
		if err != nil {
			return err
		}
		b.emit(spreadAttrOp{fn: fn, at: b.site(a.At)})
		return nil
	}
	name, static := staticValue(a.Name)
	if v, ok := staticValue(a.Value); ok && static {
		switch {
		case IsFalse(v):
		case IsTrue(v):
			b.raw(" ")
			b.literal(toText(name))
		default:
			b.raw(" ")
			b.literal(toText(name))
			b.raw(`="`)
			_ = Render(&b.buf, v)
			b.raw(`"`)
		}
		return nil
	}
	value, err := b.compileExpr(a.Value)
	if err != nil {
		return err
	}
	if static {
		b.emit(attrOp{name: " " + Escape(toText(name)), value: value})
		return nil
	}
	nameFn, err := b.compileExpr(a.Name)
	if err != nil {
		return err
	}
	b.emit(dynAttrOp{name: nameFn, value: value})
	return nil
}

func (b *builder) buildIf(n *If) error {
	o := ifOp{branches: make([]ifBranch, len(n.Clauses))}
	for i, c := range n.Clauses {
		cond, err := b.compileExpr(c.Test.X)
		if err != nil {
			return err
		}
		br := ifBranch{cond: cond}
		binds := make(map[string]int)
		if c.Test.Pattern != nil {
			if br.match, err = b.compilePattern(c.Test.Pattern, binds); err != nil {
				return err
			}
		}
		if br.body, err = b.sub(c.Body, binds); err != nil {
			return err
		}
		o.branches[i] = br
	}
	if n.HasElse {
		els, err := b.sub(n.Else, nil)
		if err != nil {
			return err
		}
		o.els = els
	}
	b.emit(o)
	return nil
}

func (b *builder) buildMatch(n *Match) error {
	x, err := b.compileExpr(n.X)
	if err != nil {
		return err
	}
	o := matchOp{x: x, arms: make([]matchArm, len(n.Arms))}
	for i, arm := range n.Arms {
		binds := make(map[string]int)
		pat, err := b.compilePattern(arm.Pattern, binds)
		if err != nil {
			return err
		}
		var guard evalFn
		if arm.Guard != nil {
			b.push()
			b.bind(binds)
			guard, err = b.compileExpr(arm.Guard)
			b.pop()
			if err != nil {
				return err
			}
		}
		body, err := b.sub(arm.Body, binds)
		if err != nil {
			return err
		}
		o.arms[i] = matchArm{pat: pat, guard: guard, body: body}
	}
	b.emit(o)
	return nil
}

func (b *builder) buildFor(n *For) error {
	iter, err := b.compileExpr(n.Iter)
	if err != nil {
		return err
	}
	binds := make(map[string]int)
	pat, err := b.compilePattern(n.Pattern, binds)
	if err != nil {
		return err
	}
	body, err := b.sub(n.Body, binds)
	if err != nil {
		return err
	}
	b.emit(forOp{iter: iter, match: pat, body: body, at: b.site(n.At)})
	return nil
}

// buildLet compiles the value before binding so `let x = x + 1;` reads the
// outer x. The names stay visible for the rest of the enclosing scope.
func (b *builder) buildLet(n *RawStmt) error {
	value, err := b.compileExpr(n.Stmt.Value)
	if err != nil {
		return err
	}
	binds := make(map[string]int)
	pat, err := b.compilePattern(n.Stmt.Pattern, binds)
	if err != nil {
		return err
	}
	b.emit(letOp{value: value, match: pat, at: b.site(n.At)})
	b.bind(binds)
	return nil
}
