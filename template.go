package markup

import (
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// ----------------------------- Public API -----------------------------------

// Fields supplies the declared fields of a template by name.
type Fields map[string]any

// Vars are the bindings an anonymous fragment closes over.
type Vars map[string]any

// ParseOption configures Parse and New.
type ParseOption func(*parseOptions)

type parseOptions struct {
	funcs Funcs
	sets  []*Set
}

// WithFuncs makes fns callable from templates, in addition to DefaultFuncs.
func WithFuncs(fns Funcs) ParseOption {
	return func(o *parseOptions) { maps.Copy(o.funcs, fns) }
}

// WithTemplates lets struct literals name the templates of s, so units can
// compose templates parsed earlier.
func WithTemplates(s *Set) ParseOption {
	return func(o *parseOptions) {
		if s != nil {
			o.sets = append(o.sets, s)
		}
	}
}

func newParseOptions(opts []ParseOption) *parseOptions {
	o := &parseOptions{funcs: DefaultFuncs()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Set holds the templates of one parsed unit.
type Set struct {
	templates map[string]*Template
	order     []*Template
}

// Parse compiles a unit of one or more named templates. Either every
// template compiles or an error is returned and nothing is kept.
func Parse(src string, opts ...ParseOption) (*Set, error) {
	o := newParseOptions(opts)
	decls, err := parseUnit(src)
	if err != nil {
		return nil, err
	}
	set := &Set{templates: make(map[string]*Template, len(decls))}
	for _, d := range decls {
		t := newTemplate(d, d.Fields)
		set.templates[d.Name] = t
		set.order = append(set.order, t)
	}
	lookup := func(name string) *Template {
		if t := set.templates[name]; t != nil {
			return t
		}
		for _, s := range o.sets {
			if t := s.Lookup(name); t != nil {
				return t
			}
		}
		return nil
	}
	for _, t := range set.order {
		if err := t.build(src, o.funcs, lookup); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// MustParse is like Parse but panics on error.
func MustParse(src string, opts ...ParseOption) *Set {
	s, err := Parse(src, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the named template, or nil.
func (s *Set) Lookup(name string) *Template {
	if s == nil {
		return nil
	}
	return s.templates[name]
}

// Templates returns the templates in declaration order.
func (s *Set) Templates() []*Template {
	return slices.Clone(s.order)
}

// ----------------------------- Templates ------------------------------------

// Template is a compiled named template. It is immutable and safe for
// concurrent renders.
type Template struct {
	decl    *Decl
	params  []Field
	classes []fieldClass
	index   map[string]int
	prog    program
	nslots  int
}

func newTemplate(d *Decl, params []Field) *Template {
	t := &Template{
		decl:    d,
		params:  params,
		classes: make([]fieldClass, len(params)),
		index:   make(map[string]int, len(params)),
	}
	for i, f := range params {
		t.index[f.Name] = i
		t.classes[i] = classify(f.Type)
	}
	return t
}

// build compiles the body. Fields occupy the first slots of the frame.
func (t *Template) build(src string, funcs Funcs, lookup func(string) *Template) error {
	b := newBuilder(src, funcs, lookup)
	for _, f := range t.params {
		b.declare(f.Name)
	}
	if err := b.buildNodes(t.decl.Children); err != nil {
		return err
	}
	b.flush()
	t.prog = b.ops
	t.nslots = b.nslots
	log().Debug().
		Str("template", t.decl.Name).
		Int("fields", len(t.params)).
		Int("size_hint", t.decl.SizeHint).
		Int("ops", len(t.prog)).
		Msg("compiled template")
	return nil
}

func (t *Template) Name() string { return t.decl.Name }

// Fields returns the declared fields in order.
func (t *Template) Fields() []Field { return slices.Clone(t.decl.Fields) }

// SizeHint is the estimated output size used to pre-size render buffers.
func (t *Template) SizeHint() int { return t.decl.SizeHint }

// Decl returns the parsed declaration. It must not be modified.
func (t *Template) Decl() *Decl { return t.decl }

func (t *Template) fieldIndex(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// With binds fields and returns an instance that renders on its own.
func (t *Template) With(fields Fields) (*Instance, error) {
	vals, err := t.bind(fields)
	if err != nil {
		return nil, err
	}
	return &Instance{t: t, values: vals}, nil
}

// Render binds data to the declared fields and writes the template to w.
// Data may be Fields, a map with string keys, a struct or pointer to struct,
// or an *Instance.
func (t *Template) Render(w io.Writer, data any) error {
	vals, err := t.bind(data)
	if err != nil {
		return err
	}
	return t.exec(w, vals)
}

// RenderString renders into a pooled buffer and returns a string.
func (t *Template) RenderString(data any) (string, error) {
	vals, err := t.bind(data)
	if err != nil {
		return "", err
	}
	return t.execString(vals)
}

func (t *Template) exec(w io.Writer, vals []any) error {
	f := getFrame(t.nslots)
	defer putFrame(f)
	copy(f.slots, vals)
	return t.prog.exec(f, w)
}

func (t *Template) execString(vals []any) (string, error) {
	buf := getBuffer(t.decl.SizeHint)
	defer putBuffer(buf)
	if err := t.exec(buf, vals); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// bind resolves every declared field from data.
func (t *Template) bind(data any) ([]any, error) {
	if inst, ok := data.(*Instance); ok && inst != nil {
		if inst.t == t {
			return inst.values, nil
		}
		data = inst.Fields()
	}
	get, err := fieldSource(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", t.Name(), err)
	}
	vals := make([]any, len(t.params))
	for i, f := range t.params {
		v, ok, err := get(f.Name)
		if err != nil {
			return nil, fmt.Errorf("template %s: field %s: %w", t.Name(), f.Name, err)
		}
		if !ok {
			return nil, fmt.Errorf("template %s: %w %s", t.Name(), ErrMissingField, f.Name)
		}
		vals[i] = v
	}
	if err := t.checkValues(vals); err != nil {
		return nil, err
	}
	return vals, nil
}

// fieldSource adapts render data to a lookup by field name.
func fieldSource(data any) (func(string) (any, bool, error), error) {
	switch d := data.(type) {
	case nil:
		return func(string) (any, bool, error) { return nil, false, nil }, nil
	case Fields:
		return func(name string) (any, bool, error) { v, ok := d[name]; return v, ok, nil }, nil
	case map[string]any:
		return func(name string) (any, bool, error) { v, ok := d[name]; return v, ok, nil }, nil
	}
	rv := reflect.ValueOf(data)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot bind fields from nil %T", data)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		return func(name string) (any, bool, error) {
			mv := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
			if !mv.IsValid() {
				return nil, false, nil
			}
			return mv.Interface(), true, nil
		}, nil
	case reflect.Struct:
		return func(name string) (any, bool, error) {
			info := globalFieldCache.lookup(rv.Type(), name)
			if !info.found {
				return nil, false, nil
			}
			v, err := structField(rv, name)
			return v, err == nil, err
		}, nil
	}
	return nil, fmt.Errorf("cannot bind fields from %T", data)
}

// ----------------------------- Field types ----------------------------------

// fieldClass is the scalar family of a declared field type. Fields of any
// other type accept any value.
type fieldClass uint8

const (
	classAny fieldClass = iota
	classInt
	classFloat
	classString
	classBool
)

var classNames = [...]string{"any", "integer", "number", "string", "bool"}

func classify(typ string) fieldClass {
	typ = strings.TrimSpace(typ)
	typ = strings.TrimLeft(typ, "&")
	if strings.HasPrefix(typ, "'") {
		if i := strings.IndexByte(typ, ' '); i >= 0 {
			typ = typ[i+1:]
		}
	}
	typ = strings.TrimPrefix(strings.TrimSpace(typ), "mut ")
	switch typ {
	case "int", "int8", "int16", "int32", "int64", "uint", "uint8", "uint16", "uint32", "uint64",
		"i8", "i16", "i32", "i64", "i128", "isize", "u8", "u16", "u32", "u64", "u128", "usize":
		return classInt
	case "float32", "float64", "f32", "f64":
		return classFloat
	case "string", "str", "String", "char", "rune":
		return classString
	case "bool":
		return classBool
	}
	return classAny
}

func (c fieldClass) accepts(v any) bool {
	switch c {
	case classInt:
		_, ok := toInt(v)
		return ok
	case classFloat:
		_, ok := toNumber(v)
		return ok
	case classString:
		if _, ok := stringOf(v); ok {
			return true
		}
		switch v.(type) {
		case fmt.Stringer, Renderer:
			return true
		}
		return false
	case classBool:
		v, _ = deref(v)
		return v != nil && reflect.ValueOf(v).Kind() == reflect.Bool
	}
	return true
}

func (t *Template) checkValues(vals []any) error {
	for i, c := range t.classes {
		if !c.accepts(vals[i]) {
			f := t.params[i]
			return fmt.Errorf("template %s: %w: %s wants %s (%s), got %T",
				t.Name(), ErrFieldType, f.Name, classNames[c], f.Type, vals[i])
		}
	}
	return nil
}

// ----------------------------- Instances ------------------------------------

// Instance is a template with its fields bound. It renders itself, so it can
// be embedded in another template's output without being escaped twice.
type Instance struct {
	t      *Template
	values []any
}

func (i *Instance) Template() *Template { return i.t }

// Get returns the value of a declared field.
func (i *Instance) Get(name string) (any, bool) {
	idx := i.t.fieldIndex(name)
	if idx < 0 {
		return nil, false
	}
	return i.values[idx], true
}

// Fields returns the bound values by name.
func (i *Instance) Fields() Fields {
	fs := make(Fields, len(i.values))
	for idx, f := range i.t.params {
		fs[f.Name] = i.values[idx]
	}
	return fs
}

func (i *Instance) Render(w io.Writer) error { return i.t.exec(w, i.values) }

func (i *Instance) RenderString() (string, error) { return i.t.execString(i.values) }

// ----------------------------- Fragments ------------------------------------

// Fragment is an anonymous template: a bare node sequence closing over the
// variables supplied when it was created.
type Fragment struct {
	t      *Template
	values []any
}

// New compiles src as a fragment. Every name in vars is visible inside it.
func New(src string, vars Vars, opts ...ParseOption) (*Fragment, error) {
	o := newParseOptions(opts)
	decl, err := parseFragmentSource(src)
	if err != nil {
		return nil, err
	}
	names := slices.Sorted(maps.Keys(vars))
	params := make([]Field, len(names))
	values := make([]any, len(names))
	for i, n := range names {
		params[i] = Field{Name: n}
		values[i] = vars[n]
	}
	t := newTemplate(decl, params)
	lookup := func(name string) *Template {
		for _, s := range o.sets {
			if t := s.Lookup(name); t != nil {
				return t
			}
		}
		return nil
	}
	if err := t.build(src, o.funcs, lookup); err != nil {
		return nil, err
	}
	return &Fragment{t: t, values: values}, nil
}

// MustNew is like New but panics on error.
func MustNew(src string, vars Vars, opts ...ParseOption) *Fragment {
	f, err := New(src, vars, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Fragment) Render(w io.Writer) error { return f.t.exec(w, f.values) }

func (f *Fragment) RenderString() (string, error) { return f.t.execString(f.values) }

// SizeHint is the estimated output size of the fragment.
func (f *Fragment) SizeHint() int { return f.t.decl.SizeHint }
