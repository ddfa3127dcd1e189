package markup

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ----------------------------- Expression compiler --------------------------
//
// Host expressions are compiled once into closures over a frame of slots.
// Variables are resolved to slot indexes while building, so an unknown name
// is a compile error rather than a render-time surprise.

type evalFn func(*frame) (any, error)

// matchFn tests a value against a pattern, storing bindings into the frame.
type matchFn func(*frame, any) (bool, error)

func constant(v any) evalFn {
	return func(*frame) (any, error) { return v, nil }
}

func (b *builder) evalErr(pos Pos, err error) error {
	return b.site(pos).fail(err)
}

func (b *builder) compileExpr(e Expr) (evalFn, error) {
	switch x := e.(type) {
	case *Lit:
		return constant(x.Value), nil
	case *Ident:
		return b.compileIdent(x)
	case *Unary:
		return b.compileUnary(x)
	case *Binary:
		return b.compileBinary(x)
	case *RangeExpr:
		lo, hi, err := b.compilePair(x.Lo, x.Hi)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			a, err := lo(f)
			if err != nil {
				return nil, err
			}
			c, err := hi(f)
			if err != nil {
				return nil, err
			}
			r, err := makeRange(a, c, x.Inclusive)
			if err != nil {
				return nil, b.evalErr(x.At, err)
			}
			return r, nil
		}, nil
	case *FieldExpr:
		recv, err := b.compileExpr(x.X)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			v, err := recv(f)
			if err != nil {
				return nil, err
			}
			out, err := getField(v, x.Name)
			if err != nil {
				return nil, b.evalErr(x.At, err)
			}
			return out, nil
		}, nil
	case *IndexExpr:
		recv, idx, err := b.compilePair(x.X, x.Index)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			v, err := recv(f)
			if err != nil {
				return nil, err
			}
			i, err := idx(f)
			if err != nil {
				return nil, err
			}
			out, err := getIndex(v, i)
			if err != nil {
				return nil, b.evalErr(x.At, err)
			}
			return out, nil
		}, nil
	case *Call:
		return b.compileCall(x)
	case *MethodCall:
		return b.compileMethod(x)
	case *ArrayLit:
		elems, err := b.compileList(x.Elems)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) { return evalList(f, elems) }, nil
	case *TupleLit:
		elems, err := b.compileList(x.Elems)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			vals, err := evalList(f, elems)
			return Tuple(vals), err
		}, nil
	case *StructLit:
		return b.compileStructLit(x)
	case *IfExpr:
		return b.compileIfExpr(x)
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (b *builder) compilePair(x, y Expr) (evalFn, evalFn, error) {
	fx, err := b.compileExpr(x)
	if err != nil {
		return nil, nil, err
	}
	fy, err := b.compileExpr(y)
	if err != nil {
		return nil, nil, err
	}
	return fx, fy, nil
}

func (b *builder) compileList(xs []Expr) ([]evalFn, error) {
	fns := make([]evalFn, len(xs))
	for i, x := range xs {
		fn, err := b.compileExpr(x)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return fns, nil
}

func evalList(f *frame, fns []evalFn) ([]any, error) {
	vals := make([]any, len(fns))
	for i, fn := range fns {
		v, err := fn(f)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (b *builder) compileIdent(x *Ident) (evalFn, error) {
	if slot, ok := b.lookup(x.Name); ok {
		return func(f *frame) (any, error) { return f.slots[slot], nil }, nil
	}
	if x.Name == "None" {
		return constant(noneValue{}), nil
	}
	return nil, b.errorf(x.At, "unknown identifier "+x.Name)
}

func (b *builder) compileUnary(x *Unary) (evalFn, error) {
	if v, ok := staticValue(x); ok {
		return constant(v), nil
	}
	fx, err := b.compileExpr(x.X)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "-":
		return func(f *frame) (any, error) {
			v, err := fx(f)
			if err != nil {
				return nil, err
			}
			n, err := negate(v)
			if err != nil {
				return nil, b.evalErr(x.At, err)
			}
			return n, nil
		}, nil
	case "!":
		return func(f *frame) (any, error) {
			v, err := fx(f)
			if err != nil {
				return nil, err
			}
			return !truthy(v), nil
		}, nil
	case "*":
		return func(f *frame) (any, error) {
			v, err := fx(f)
			if err != nil {
				return nil, err
			}
			if d, ok := deref(v); ok {
				return d, nil
			}
			return v, nil
		}, nil
	}
	return fx, nil
}

func (b *builder) compileBinary(x *Binary) (evalFn, error) {
	fx, fy, err := b.compilePair(x.X, x.Y)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "&&", "||":
		or := x.Op == "||"
		return func(f *frame) (any, error) {
			l, err := fx(f)
			if err != nil {
				return nil, err
			}
			if truthy(l) == or {
				return or, nil
			}
			r, err := fy(f)
			if err != nil {
				return nil, err
			}
			return truthy(r), nil
		}, nil
	}
	op := arith
	if slices.Contains(compareOps, x.Op) {
		op = compareOp
	}
	return func(f *frame) (any, error) {
		l, err := fx(f)
		if err != nil {
			return nil, err
		}
		r, err := fy(f)
		if err != nil {
			return nil, err
		}
		v, err := op(x.Op, l, r)
		if err != nil {
			return nil, b.evalErr(x.At, err)
		}
		return v, nil
	}, nil
}

func (b *builder) compileCall(x *Call) (evalFn, error) {
	name := strings.TrimPrefix(x.Func, "markup::")
	if x.Macro {
		return b.compileMacro(x, name)
	}
	args, err := b.compileList(x.Args)
	if err != nil {
		return nil, err
	}
	if name == "Some" {
		if len(args) != 1 {
			return nil, b.errorf(x.At, "Some takes exactly one argument")
		}
		inner := args[0]
		return func(f *frame) (any, error) {
			v, err := inner(f)
			if err != nil {
				return nil, err
			}
			return someValue{v: v}, nil
		}, nil
	}
	fn, ok := b.funcs[name]
	if !ok {
		return nil, b.errorf(x.At, "unknown function "+x.Func)
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, b.errorf(x.At, name+" is not a function")
	}
	if err := checkSignature(rv.Type(), len(args)); err != nil {
		return nil, b.errorf(x.At, name+" "+err.Error())
	}
	return func(f *frame) (any, error) {
		vals, err := evalList(f, args)
		if err != nil {
			return nil, err
		}
		v, err := callFunc(rv, name, vals)
		if err != nil {
			return nil, b.evalErr(x.At, err)
		}
		return v, nil
	}, nil
}

func (b *builder) compileMacro(x *Call, name string) (evalFn, error) {
	switch name {
	case "vec":
		return b.compileExpr(&ArrayLit{At: x.At, Elems: x.Args})
	case "format":
		if len(x.Args) == 0 {
			return nil, b.errorf(x.At, "format! requires a format string")
		}
		var s string
		isString := false
		if lit, ok := x.Args[0].(*Lit); ok {
			s, isString = lit.Value.(string)
		}
		if !isString {
			return nil, b.errorf(x.At, "format! requires a string literal")
		}
		f, n, err := rustFormat(s)
		if err != nil {
			return nil, b.errorf(x.At, err.Error())
		}
		if n != len(x.Args)-1 {
			return nil, b.errorf(x.At, fmt.Sprintf("format! has %d placeholders but %d arguments", n, len(x.Args)-1))
		}
		args, err := b.compileList(x.Args[1:])
		if err != nil {
			return nil, err
		}
		return func(fr *frame) (any, error) {
			vals, err := evalList(fr, args)
			if err != nil {
				return nil, err
			}
			return format(f, vals...), nil
		}, nil
	}
	return nil, b.errorf(x.At, "unknown macro "+x.Func+"!")
}

func (b *builder) compileMethod(x *MethodCall) (evalFn, error) {
	recv, err := b.compileExpr(x.X)
	if err != nil {
		return nil, err
	}
	args, err := b.compileList(x.Args)
	if err != nil {
		return nil, err
	}
	return func(f *frame) (any, error) {
		v, err := recv(f)
		if err != nil {
			return nil, err
		}
		vals, err := evalList(f, args)
		if err != nil {
			return nil, err
		}
		out, ok, err := builtinMethod(x.Name, v, vals)
		if !ok && err == nil {
			out, err = invokeMethod(v, x.Name, vals)
		}
		if err != nil {
			return nil, b.evalErr(x.At, err)
		}
		return out, nil
	}, nil
}

func (b *builder) compileStructLit(x *StructLit) (evalFn, error) {
	name := x.Name
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	t := b.lookupTemplate(name)
	if t == nil {
		return nil, b.errorf(x.At, "unknown template "+x.Name)
	}
	fields := make([]evalFn, len(t.decl.Fields))
	for _, init := range x.Fields {
		i := t.fieldIndex(init.Name)
		if i < 0 {
			return nil, b.errorf(x.At, "template "+name+" has no field "+init.Name)
		}
		if fields[i] != nil {
			return nil, b.errorf(x.At, "field "+init.Name+" specified twice")
		}
		fn, err := b.compileExpr(init.Value)
		if err != nil {
			return nil, err
		}
		fields[i] = fn
	}
	for i, fn := range fields {
		if fn == nil {
			return nil, b.errorf(x.At, "missing field "+t.decl.Fields[i].Name+" in "+name)
		}
	}
	return func(f *frame) (any, error) {
		vals, err := evalList(f, fields)
		if err != nil {
			return nil, err
		}
		if err := t.checkValues(vals); err != nil {
			return nil, b.evalErr(x.At, err)
		}
		return &Instance{t: t, values: vals}, nil
	}, nil
}

func (b *builder) compileIfExpr(x *IfExpr) (evalFn, error) {
	cond, then, err := b.compilePair(x.Cond, x.Then)
	if err != nil {
		return nil, err
	}
	els := constant(noneValue{})
	if x.Else != nil {
		if els, err = b.compileExpr(x.Else); err != nil {
			return nil, err
		}
	}
	return func(f *frame) (any, error) {
		c, err := cond(f)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return then(f)
		}
		return els(f)
	}, nil
}

// staticValue folds literals and negated numeric literals.
func staticValue(e Expr) (any, bool) {
	switch x := e.(type) {
	case *Lit:
		return x.Value, true
	case *Unary:
		if x.Op != "-" {
			return nil, false
		}
		lit, ok := x.X.(*Lit)
		if !ok {
			return nil, false
		}
		switch n := lit.Value.(type) {
		case int64:
			return -n, true
		case float64:
			return -n, true
		}
	}
	return nil, false
}

// ----------------------------- Patterns -------------------------------------

// compilePattern compiles p, allocating a slot for every name it binds.
// binds collects those names; alternatives of an or-pattern share slots.
func (b *builder) compilePattern(p Pattern, binds map[string]int) (matchFn, error) {
	switch x := p.(type) {
	case *WildcardPat:
		return func(*frame, any) (bool, error) { return true, nil }, nil
	case *BindPat:
		slot, ok := binds[x.Name]
		if !ok {
			slot = b.alloc()
			binds[x.Name] = slot
		}
		return func(f *frame, v any) (bool, error) {
			f.slots[slot] = v
			return true, nil
		}, nil
	case *LitPat:
		lit := x.Value
		return func(_ *frame, v any) (bool, error) {
			if d, ok := deref(v); ok {
				v = d
			}
			return equalValues(v, lit), nil
		}, nil
	case *NonePat:
		return func(_ *frame, v any) (bool, error) { return IsAbsent(v), nil }, nil
	case *SomePat:
		inner, err := b.compilePattern(x.Inner, binds)
		if err != nil {
			return nil, err
		}
		return func(f *frame, v any) (bool, error) {
			if IsAbsent(v) {
				return false, nil
			}
			if payload, _, ok := unwrapOptional(v); ok {
				v = payload
			} else if d, ok := deref(v); ok {
				v = d
			}
			return inner(f, v)
		}, nil
	case *TuplePat:
		return b.compileSeqPattern(x.Elems, false, binds)
	case *SlicePat:
		return b.compileSeqPattern(x.Elems, x.Rest, binds)
	case *RangePat:
		lo, hi, inclusive := x.Lo, x.Hi, x.Inclusive
		return func(_ *frame, v any) (bool, error) {
			c1, ok1 := compareValues(v, lo)
			c2, ok2 := compareValues(v, hi)
			if !ok1 || !ok2 {
				return false, nil
			}
			return c1 >= 0 && (c2 < 0 || inclusive && c2 == 0), nil
		}, nil
	case *OrPat:
		return b.compileOrPattern(x, binds)
	}
	return nil, fmt.Errorf("unsupported pattern %T", p)
}

func (b *builder) compileSeqPattern(elems []Pattern, rest bool, binds map[string]int) (matchFn, error) {
	fns := make([]matchFn, len(elems))
	for i, e := range elems {
		fn, err := b.compilePattern(e, binds)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return func(f *frame, v any) (bool, error) {
		items, ok := seqItems(v)
		if !ok || len(items) < len(fns) || !rest && len(items) != len(fns) {
			return false, nil
		}
		for i, fn := range fns {
			matched, err := fn(f, items[i])
			if err != nil || !matched {
				return false, err
			}
		}
		return true, nil
	}, nil
}

func (b *builder) compileOrPattern(x *OrPat, binds map[string]int) (matchFn, error) {
	want := patternNames(x.Alts[0])
	fns := make([]matchFn, len(x.Alts))
	for i, alt := range x.Alts {
		if got := patternNames(alt); !slices.Equal(got, want) {
			return nil, b.errorf(x.At, "all alternatives of a pattern must bind the same names")
		}
		fn, err := b.compilePattern(alt, binds)
		if err != nil {
			return nil, err
		}
		fns[i] = fn
	}
	return func(f *frame, v any) (bool, error) {
		for _, fn := range fns {
			if ok, err := fn(f, v); ok || err != nil {
				return ok, err
			}
		}
		return false, nil
	}, nil
}

// patternNames lists the names a pattern binds, sorted.
func patternNames(p Pattern) []string {
	var names []string
	var walk func(Pattern)
	walk = func(p Pattern) {
		switch x := p.(type) {
		case *BindPat:
			if !slices.Contains(names, x.Name) {
				names = append(names, x.Name)
			}
		case *SomePat:
			walk(x.Inner)
		case *TuplePat:
			for _, e := range x.Elems {
				walk(e)
			}
		case *SlicePat:
			for _, e := range x.Elems {
				walk(e)
			}
		case *OrPat:
			for _, a := range x.Alts {
				walk(a)
			}
		}
	}
	walk(p)
	slices.Sort(names)
	return names
}

// seqItems exposes tuples, slices and arrays to sequence patterns.
func seqItems(v any) ([]any, bool) {
	switch x := v.(type) {
	case Tuple:
		return x, true
	case []any:
		return x, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
