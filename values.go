package markup

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// ----------------------------- Runtime values -------------------------------

// Tuple is what tuple expressions, enumerate() and map iteration produce.
type Tuple []any

// rangeValue is the half-open integer interval [lo, hi). Char ranges yield
// Char values.
type rangeValue struct {
	lo, hi int64
	char   bool
}

type enumerated struct{ src any }

type reversed struct{ src any }

var errNotIterable = errors.New("value is not iterable")

// normalize maps reflected scalars, including named types, onto int64,
// uint64, float64 or bool.
func normalize(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u <= math.MaxInt64 {
			return int64(u)
		}
		return u
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return rv.Interface()
}

// deref follows pointers and unwraps interfaces. ok is false for nil.
func deref(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface {
		return v, true
	}
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	return rv.Interface(), true
}

// number is an int64 or a float64.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

func toNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int:
		return number{i: int64(x)}, true
	case int64:
		return number{i: x}, true
	case float64:
		return number{f: x, isFloat: true}, true
	case nil, string, bool, Char:
		return number{}, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return number{}, false
		}
		return toNumber(rv.Elem().Interface())
	}
	switch n := normalize(rv).(type) {
	case int64:
		return number{i: n}, true
	case uint64:
		return number{f: float64(n), isFloat: true}, true
	case float64:
		return number{f: n, isFloat: true}, true
	}
	return number{}, false
}

// toInt converts integral values, used for indexes, ranges and counts.
func toInt(v any) (int64, bool) {
	n, ok := toNumber(v)
	if !ok || n.isFloat {
		return 0, false
	}
	return n.i, true
}

// stringOf reports the string content of string-shaped values.
func stringOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case Char:
		return string(rune(x)), true
	case nil:
		return "", false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func arith(op string, x, y any) (any, error) {
	if op == "+" {
		if a, ok := stringOf(x); ok {
			if b, ok := stringOf(y); ok {
				return a + b, nil
			}
		}
	}
	a, ok1 := toNumber(x)
	b, ok2 := toNumber(y)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("invalid operands for %s: %T and %T", op, x, y)
	}
	if a.isFloat || b.isFloat {
		l, r := a.float(), b.float()
		switch op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			return l / r, nil
		default:
			return math.Mod(l, r), nil
		}
	}
	return intArith(op, a.i, b.i)
}

// intArith is int64 arithmetic that reports overflow instead of wrapping.
func intArith(op string, a, b int64) (any, error) {
	var r int64
	switch op {
	case "+":
		r = a + b
		if (b > 0 && r < a) || (b < 0 && r > a) {
			return nil, overflow(op, a, b)
		}
	case "-":
		r = a - b
		if (b < 0 && r < a) || (b > 0 && r > a) {
			return nil, overflow(op, a, b)
		}
	case "*":
		if a == 0 || b == 0 {
			return int64(0), nil
		}
		r = a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return nil, overflow(op, a, b)
		}
	default:
		if b == 0 {
			return nil, errors.New("integer division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			if op == "%" {
				return int64(0), nil
			}
			return nil, overflow(op, a, b)
		}
		if op == "/" {
			r = a / b
		} else {
			r = a % b
		}
	}
	return r, nil
}

func overflow(op string, a, b int64) error {
	return fmt.Errorf("integer overflow in %d %s %d", a, op, b)
}

func negate(v any) (any, error) {
	n, ok := toNumber(v)
	if !ok {
		return nil, fmt.Errorf("cannot negate %T", v)
	}
	if n.isFloat {
		return -n.f, nil
	}
	if n.i == math.MinInt64 {
		return nil, fmt.Errorf("integer overflow in -(%d)", n.i)
	}
	return -n.i, nil
}

func pow(base, exp any) (any, error) {
	b, ok1 := toNumber(base)
	e, ok2 := toNumber(exp)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("invalid operands for pow: %T and %T", base, exp)
	}
	if b.isFloat || e.isFloat || e.i < 0 {
		return math.Pow(b.float(), e.float()), nil
	}
	r := int64(1)
	for i := int64(0); i < e.i; i++ {
		v, err := intArith("*", r, b.i)
		if err != nil {
			return nil, fmt.Errorf("integer overflow in %d.pow(%d)", b.i, e.i)
		}
		r = v.(int64)
	}
	return r, nil
}

// truthy decides `@if` tests and the operands of && and ||.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case int:
		return x != 0
	case float64:
		return x != 0
	}
	if isNilRef(v) {
		return false
	}
	switch x := v.(type) {
	case Booler:
		return x.IsTrue()
	case Absenter:
		return !x.IsAbsent()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String, reflect.Chan:
		return rv.Len() != 0
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return truthy(rv.Elem().Interface())
	}
	return !rv.IsZero()
}

// unwrapOptional reports the payload of an Option, Some or None. A nil
// *Option counts as an empty one.
func unwrapOptional(v any) (any, bool, bool) {
	if o, ok := v.(optional); ok {
		if isNilRef(v) {
			return nil, false, true
		}
		inner, present := o.unwrap()
		return inner, present, true
	}
	return v, false, false
}

func equalValues(x, y any) bool {
	if IsAbsent(x) || IsAbsent(y) {
		return IsAbsent(x) && IsAbsent(y)
	}
	if a, present, ok := unwrapOptional(x); ok && present {
		if b, present, ok := unwrapOptional(y); ok && present {
			return equalValues(a, b)
		}
	}
	if a, ok := toNumber(x); ok {
		if b, ok := toNumber(y); ok {
			if a.isFloat || b.isFloat {
				return a.float() == b.float()
			}
			return a.i == b.i
		}
		return false
	}
	if a, ok := stringOf(x); ok {
		b, ok := stringOf(y)
		return ok && a == b
	}
	if a, ok := x.(bool); ok {
		b, ok := y.(bool)
		return ok && a == b
	}
	if a, ok := x.(Tuple); ok {
		b, ok := y.(Tuple)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !equalValues(a[i], b[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(x, y)
}

// compareValues orders numbers, strings, booleans and tuples.
func compareValues(x, y any) (int, bool) {
	if a, ok := toNumber(x); ok {
		b, ok := toNumber(y)
		if !ok {
			return 0, false
		}
		if a.isFloat || b.isFloat {
			return cmp.Compare(a.float(), b.float()), true
		}
		return cmp.Compare(a.i, b.i), true
	}
	if a, ok := x.(Char); ok {
		if b, ok := y.(Char); ok {
			return cmp.Compare(a, b), true
		}
	}
	if a, ok := stringOf(x); ok {
		b, ok := stringOf(y)
		return strings.Compare(a, b), ok
	}
	if a, ok := x.(bool); ok {
		b, ok := y.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case a == b:
			return 0, true
		case !a:
			return -1, true
		}
		return 1, true
	}
	if a, ok := x.(Tuple); ok {
		b, ok := y.(Tuple)
		if !ok {
			return 0, false
		}
		for i := 0; i < len(a) && i < len(b); i++ {
			c, ok := compareValues(a[i], b[i])
			if !ok {
				return 0, false
			}
			if c != 0 {
				return c, true
			}
		}
		return cmp.Compare(len(a), len(b)), true
	}
	return 0, false
}

func compareOp(op string, x, y any) (any, error) {
	switch op {
	case "==":
		return equalValues(x, y), nil
	case "!=":
		return !equalValues(x, y), nil
	}
	c, ok := compareValues(x, y)
	if !ok {
		return nil, fmt.Errorf("cannot compare %T and %T", x, y)
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

// toText is the unescaped text of a value, as used by to_string(), string()
// and format().
func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case Raw:
		return string(x)
	case Char:
		return string(rune(x))
	case []byte:
		return string(x)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, uintptr, float32, float64:
		return string(appendScalar(nil, x))
	}
	if isNilRef(v) {
		return ""
	}
	switch x := v.(type) {
	case optional:
		inner, ok := x.unwrap()
		if !ok {
			return ""
		}
		return toText(inner)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	case Renderer:
		var sb strings.Builder
		_ = x.Render(&sb)
		return sb.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return toText(rv.Elem().Interface())
	case reflect.String:
		return rv.String()
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return toText(normalize(rv))
	}
	return fmt.Sprint(v)
}

// ----------------------------- Iteration ------------------------------------

// each calls fn for every element of an iterable value: slices, arrays,
// strings (as Char), maps (as sorted key/value Tuples), ranges, Go iterator
// functions and channels, and a present optional (once).
func each(v any, fn func(any) error) error {
	switch x := v.(type) {
	case nil:
		return errNotIterable
	case []any:
		for _, item := range x {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	case Tuple:
		for _, item := range x {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	case []string:
		for _, item := range x {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	case []map[string]any:
		for _, item := range x {
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	case string:
		for _, r := range x {
			if err := fn(Char(r)); err != nil {
				return err
			}
		}
		return nil
	case rangeValue:
		for i := x.lo; i < x.hi; i++ {
			var item any = i
			if x.char {
				item = Char(rune(i))
			}
			if err := fn(item); err != nil {
				return err
			}
		}
		return nil
	case enumerated:
		i := int64(0)
		return each(x.src, func(item any) error {
			t := Tuple{i, item}
			i++
			return fn(t)
		})
	case reversed:
		items, err := collect(x.src)
		if err != nil {
			return err
		}
		for i := len(items) - 1; i >= 0; i-- {
			if err := fn(items[i]); err != nil {
				return err
			}
		}
		return nil
	case optional:
		inner, ok := x.unwrap()
		if !ok {
			return nil
		}
		return fn(inner)
	}
	return eachReflect(reflect.ValueOf(v), fn)
}

func eachReflect(rv reflect.Value, fn func(any) error) error {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return errNotIterable
		}
		return each(rv.Elem().Interface(), fn)
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := fn(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	case reflect.String:
		return each(rv.String(), fn)
	case reflect.Map:
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			if c, ok := compareValues(a.Interface(), b.Interface()); ok {
				return c
			}
			return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		for _, k := range keys {
			if err := fn(Tuple{k.Interface(), rv.MapIndex(k).Interface()}); err != nil {
				return err
			}
		}
		return nil
	case reflect.Func, reflect.Chan:
		var err error
		if rv.Type().CanSeq2() {
			for k, v := range rv.Seq2() {
				if err = fn(Tuple{k.Interface(), v.Interface()}); err != nil {
					break
				}
			}
			return err
		}
		if rv.Type().CanSeq() {
			for v := range rv.Seq() {
				if err = fn(v.Interface()); err != nil {
					break
				}
			}
			return err
		}
	}
	return errNotIterable
}

// collect materializes an iterable.
func collect(v any) ([]any, error) {
	var items []any
	err := each(v, func(item any) error {
		items = append(items, item)
		return nil
	})
	return items, err
}

// length is len() for strings (in bytes), collections and ranges.
func length(v any) (int64, error) {
	switch x := v.(type) {
	case string:
		return int64(len(x)), nil
	case Tuple:
		return int64(len(x)), nil
	case rangeValue:
		return max(x.hi-x.lo, 0), nil
	case enumerated:
		return length(x.src)
	case reversed:
		return length(x.src)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String, reflect.Chan:
		return int64(rv.Len()), nil
	case reflect.Pointer:
		if !rv.IsNil() {
			return length(rv.Elem().Interface())
		}
	}
	items, err := collect(v)
	if err != nil {
		return 0, fmt.Errorf("len of %T: %w", v, err)
	}
	return int64(len(items)), nil
}

func makeRange(lo, hi any, inclusive bool) (any, error) {
	if a, ok := lo.(Char); ok {
		b, ok := hi.(Char)
		if !ok {
			return nil, fmt.Errorf("range bounds must have the same type, got %T and %T", lo, hi)
		}
		r := rangeValue{lo: int64(a), hi: int64(b), char: true}
		if inclusive {
			r.hi++
		}
		return r, nil
	}
	a, ok1 := toInt(lo)
	b, ok2 := toInt(hi)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("range bounds must be integers, got %T and %T", lo, hi)
	}
	if inclusive {
		b++
	}
	return rangeValue{lo: a, hi: b}, nil
}

func (r rangeValue) String() string {
	if r.char {
		return fmt.Sprintf("%q..%q", rune(r.lo), rune(r.hi))
	}
	return strconv.FormatInt(r.lo, 10) + ".." + strconv.FormatInt(r.hi, 10)
}
