package markup

import (
	"errors"
	"fmt"
	"io"
)

// ----------------------------- Write program --------------------------------

// op is one instruction of a compiled template. Ops are immutable; all
// per-render state lives in the frame.
type op interface {
	exec(*frame, io.Writer) error
}

type program []op

func (p program) exec(f *frame, w io.Writer) error {
	for _, o := range p {
		if err := o.exec(f, w); err != nil {
			return err
		}
	}
	return nil
}

// site locates a host expression for runtime error reports.
type site struct {
	pos  Pos
	expr string
}

func (s site) fail(err error) error {
	var ee *EvalError
	if errors.As(err, &ee) {
		return err
	}
	return &EvalError{Pos: s.pos, Expr: s.expr, Cause: err}
}

// textOp writes coalesced static text, already escaped.
type textOp struct{ text string }

func (o textOp) exec(_ *frame, w io.Writer) error {
	if _, err := io.WriteString(w, o.text); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// exprOp renders a host expression through the render protocol.
type exprOp struct{ fn evalFn }

func (o exprOp) exec(f *frame, w io.Writer) error {
	v, err := o.fn(f)
	if err != nil {
		return err
	}
	return wrapWrite(Render(w, v))
}

// tagNameOp writes a dynamic tag name and keeps it for the close tag.
type tagNameOp struct {
	fn   evalFn
	slot int
}

func (o tagNameOp) exec(f *frame, w io.Writer) error {
	v, err := o.fn(f)
	if err != nil {
		return err
	}
	name := Escape(toText(v))
	f.slots[o.slot] = name
	if _, err := io.WriteString(w, name); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

type closeNameOp struct{ slot int }

func (o closeNameOp) exec(f *frame, w io.Writer) error {
	name, _ := f.slots[o.slot].(string)
	if _, err := io.WriteString(w, name); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// ----------------------------- Attributes -----------------------------------

// writeAttr applies the attribute rule: absent or false writes nothing, true
// writes the bare name, anything else writes name="value". name carries its
// leading space and is already escaped.
func writeAttr(w io.Writer, name string, v any) error {
	switch {
	case IsAbsent(v) || IsFalse(v):
		return nil
	case IsTrue(v):
		_, err := io.WriteString(w, name)
		return wrapWrite(err)
	}
	if _, err := io.WriteString(w, name+`="`); err != nil {
		return &WriteError{Err: err}
	}
	if err := Render(w, v); err != nil {
		return wrapWrite(err)
	}
	_, err := io.WriteString(w, `"`)
	return wrapWrite(err)
}

type attrOp struct {
	name  string
	value evalFn
}

func (o attrOp) exec(f *frame, w io.Writer) error {
	v, err := o.value(f)
	if err != nil {
		return err
	}
	return writeAttr(w, o.name, v)
}

type dynAttrOp struct {
	name, value evalFn
}

func (o dynAttrOp) exec(f *frame, w io.Writer) error {
	n, err := o.name(f)
	if err != nil {
		return err
	}
	v, err := o.value(f)
	if err != nil {
		return err
	}
	return writeAttr(w, " "+Escape(toText(n)), v)
}

// Attr is one name/value pair of a spread attribute list.
type Attr struct {
	Name  string
	Value any
}

// spreadAttrOp writes `..expr` attributes. The source yields Attr values,
// (name, value) tuples, map entries or attribute nodes.
type spreadAttrOp struct {
	fn evalFn
	at site
}

func (o spreadAttrOp) exec(f *frame, w io.Writer) error {
	v, err := o.fn(f)
	if err != nil {
		return err
	}
	if IsAbsent(v) {
		return nil
	}
	err = each(v, func(item any) error {
		switch x := item.(type) {
		case Attr:
			return writeAttr(w, " "+Escape(x.Name), x.Value)
		case *Attr:
			return writeAttr(w, " "+Escape(x.Name), x.Value)
		case Tuple:
			if len(x) == 2 {
				return writeAttr(w, " "+Escape(toText(x[0])), x[1])
			}
		}
		if ok, err := renderAttrNode(w, item); ok {
			return wrapWrite(err)
		}
		return fmt.Errorf("cannot spread %T as an attribute", item)
	})
	if err != nil && !IsWriteError(err) {
		return o.at.fail(err)
	}
	return err
}

// ----------------------------- Control flow ---------------------------------

type ifBranch struct {
	cond  evalFn
	match matchFn // nil for a boolean test
	body  program
}

type ifOp struct {
	branches []ifBranch
	els      program
}

func (o ifOp) exec(f *frame, w io.Writer) error {
	for _, br := range o.branches {
		v, err := br.cond(f)
		if err != nil {
			return err
		}
		ok := false
		if br.match != nil {
			if ok, err = br.match(f, v); err != nil {
				return err
			}
		} else {
			ok = truthy(v)
		}
		if ok {
			return br.body.exec(f, w)
		}
	}
	return o.els.exec(f, w)
}

type forOp struct {
	iter  evalFn
	match matchFn
	body  program
	at    site
}

func (o forOp) exec(f *frame, w io.Writer) error {
	v, err := o.iter(f)
	if err != nil {
		return err
	}
	err = each(v, func(item any) error {
		ok, err := o.match(f, item)
		if err != nil {
			return err
		}
		if !ok {
			return o.at.fail(fmt.Errorf("loop pattern does not match %v", item))
		}
		return o.body.exec(f, w)
	})
	var ee *EvalError
	if errors.Is(err, errNotIterable) && !errors.As(err, &ee) {
		return o.at.fail(fmt.Errorf("cannot iterate over %T: %w", v, err))
	}
	return err
}

type matchArm struct {
	pat   matchFn
	guard evalFn // nil when the arm has no guard
	body  program
}

// matchOp runs the first arm whose pattern and guard both accept the value.
// When no arm matches nothing is written.
type matchOp struct {
	x    evalFn
	arms []matchArm
}

func (o matchOp) exec(f *frame, w io.Writer) error {
	v, err := o.x(f)
	if err != nil {
		return err
	}
	for _, arm := range o.arms {
		ok, err := arm.pat(f, v)
		if err != nil {
			return err
		}
		if ok && arm.guard != nil {
			g, err := arm.guard(f)
			if err != nil {
				return err
			}
			ok = truthy(g)
		}
		if ok {
			return arm.body.exec(f, w)
		}
	}
	return nil
}

// letOp binds a pattern for the siblings that follow it. It writes nothing.
type letOp struct {
	value evalFn
	match matchFn
	at    site
}

func (o letOp) exec(f *frame, _ io.Writer) error {
	v, err := o.value(f)
	if err != nil {
		return err
	}
	ok, err := o.match(f, v)
	if err != nil {
		return err
	}
	if !ok {
		return o.at.fail(fmt.Errorf("let pattern does not match %v", v))
	}
	return nil
}
