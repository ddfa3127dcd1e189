package markup

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
)

// ----------------------------- Render protocol ------------------------------

// Renderer is implemented by values that write their own representation into
// template output. Implementations that carry user text must escape it.
type Renderer interface {
	Render(w io.Writer) error
}

// Absenter is implemented by values that can represent "no value". Absent
// values render nothing and suppress the attribute they are bound to.
type Absenter interface {
	IsAbsent() bool
}

// Booler is implemented by boolean-shaped values. It only matters when the
// value is bound to an attribute.
type Booler interface {
	IsTrue() bool
	IsFalse() bool
}

// Raw is rendered verbatim, bypassing escaping. Use it only for text that is
// already known to be safe.
type Raw string

func (r Raw) Render(w io.Writer) error {
	_, err := io.WriteString(w, string(r))
	return err
}

// Doctype returns the HTML5 doctype declaration.
func Doctype() Raw { return Raw("<!DOCTYPE html>") }

// Char is a single character. Char literals in templates evaluate to Char so
// they print as text rather than as their code point.
type Char rune

func (c Char) Render(w io.Writer) error {
	return EscapeTo(w, string(rune(c)))
}

func (c Char) String() string { return string(rune(c)) }

// Option is a value that may be absent. The zero Option is absent.
type Option[T any] struct {
	value T
	ok    bool
}

// Some returns a present Option holding v.
func Some[T any](v T) Option[T] { return Option[T]{value: v, ok: true} }

// None returns an absent Option.
func None[T any]() Option[T] { return Option[T]{} }

func (o Option[T]) Get() (T, bool) { return o.value, o.ok }

func (o Option[T]) Render(w io.Writer) error {
	if !o.ok {
		return nil
	}
	return Render(w, o.value)
}

func (o Option[T]) IsAbsent() bool { return !o.ok }

// unwrap exposes the payload to patterns without knowing T.
func (o Option[T]) unwrap() (any, bool) { return o.value, o.ok }

type optional interface {
	unwrap() (any, bool)
}

// noneValue is what the None identifier evaluates to inside templates.
type noneValue struct{}

func (noneValue) Render(io.Writer) error { return nil }
func (noneValue) IsAbsent() bool         { return true }
func (noneValue) unwrap() (any, bool)    { return nil, false }

// someValue is what Some(x) evaluates to inside templates.
type someValue struct{ v any }

func (s someValue) Render(w io.Writer) error { return Render(w, s.v) }
func (s someValue) IsAbsent() bool           { return false }
func (s someValue) unwrap() (any, bool)      { return s.v, true }

// Render writes v to w following the render protocol. Numbers, booleans and
// characters are written in canonical form; strings, byte slices, Stringers and
// errors are escaped; Renderers render themselves; pointers and interfaces
// forward to what they point at.
func Render(w io.Writer, v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return EscapeTo(w, x)
	case []byte:
		return EscapeTo(w, string(x))
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, uintptr, float32, float64:
		var buf [32]byte
		_, err := w.Write(appendScalar(buf[:0], x))
		return err
	}
	if isNilRef(v) {
		return nil
	}
	switch x := v.(type) {
	case Renderer:
		return x.Render(w)
	case fmt.Stringer:
		return EscapeTo(w, x.String())
	case error:
		return EscapeTo(w, x.Error())
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Render(w, rv.Elem().Interface())
	case reflect.String:
		return EscapeTo(w, rv.String())
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return Render(w, normalize(rv))
	}
	return EscapeTo(w, fmt.Sprint(v))
}

// IsAbsent reports whether v is an explicit "no value": nil, a nil pointer, an
// empty Option, or an Absenter saying so.
func IsAbsent(v any) bool {
	switch v.(type) {
	case nil:
		return true
	case string, bool, int, int64, float64:
		return false
	}
	if isNilRef(v) {
		return true
	}
	if x, ok := v.(Absenter); ok {
		return x.IsAbsent()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return true
		}
		return IsAbsent(rv.Elem().Interface())
	}
	return false
}

// IsTrue reports whether v is the boolean true.
func IsTrue(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	}
	if isNilRef(v) {
		return false
	}
	if x, ok := v.(Booler); ok {
		return x.IsTrue()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsTrue(rv.Elem().Interface())
	}
	return false
}

// IsFalse reports whether v is the boolean false.
func IsFalse(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return !x
	}
	if isNilRef(v) {
		return false
	}
	if x, ok := v.(Booler); ok {
		return x.IsFalse()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return IsFalse(rv.Elem().Interface())
	}
	return false
}

// isNilRef reports whether v is nil or a nil pointer or func. Such values may
// carry a method set, but calling through them panics.
func isNilRef(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func appendScalar(b []byte, v any) []byte {
	switch x := v.(type) {
	case bool:
		return strconv.AppendBool(b, x)
	case int:
		return strconv.AppendInt(b, int64(x), 10)
	case int8:
		return strconv.AppendInt(b, int64(x), 10)
	case int16:
		return strconv.AppendInt(b, int64(x), 10)
	case int32:
		return strconv.AppendInt(b, int64(x), 10)
	case int64:
		return strconv.AppendInt(b, x, 10)
	case uint:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint8:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint16:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint32:
		return strconv.AppendUint(b, uint64(x), 10)
	case uint64:
		return strconv.AppendUint(b, x, 10)
	case uintptr:
		return strconv.AppendUint(b, uint64(x), 10)
	case float32:
		return strconv.AppendFloat(b, float64(x), 'f', -1, 32)
	case float64:
		return strconv.AppendFloat(b, x, 'f', -1, 64)
	}
	return b
}
