package markup

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"
)

// ----------------------------- Fast accessors -------------------------------

// fieldCache remembers how a field or zero-argument method name resolves on a
// struct type, so repeated renders skip the name scan.
type fieldCache struct {
	mu    sync.RWMutex
	cache map[fieldCacheKey]*fieldInfo
}

type fieldCacheKey struct {
	typ  reflect.Type
	name string
}

type fieldInfo struct {
	index    []int
	found    bool
	isMethod bool
	method   string
}

func newFieldCache() *fieldCache {
	return &fieldCache{
		cache: make(map[fieldCacheKey]*fieldInfo),
	}
}

var globalFieldCache = newFieldCache()

func (fc *fieldCache) lookup(typ reflect.Type, name string) *fieldInfo {
	key := fieldCacheKey{typ: typ, name: name}
	fc.mu.RLock()
	info, ok := fc.cache[key]
	fc.mu.RUnlock()
	if ok {
		return info
	}
	info = resolveField(typ, name)
	fc.mu.Lock()
	fc.cache[key] = info
	fc.mu.Unlock()
	return info
}

// resolveField matches exported fields exactly first, then case-insensitively
// (so `user.name` finds Name), then falls back to methods the same way.
func resolveField(typ reflect.Type, name string) *fieldInfo {
	if f, ok := typ.FieldByName(name); ok && f.IsExported() {
		return &fieldInfo{index: f.Index, found: true}
	}
	if f, ok := typ.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, name) }); ok && f.IsExported() {
		return &fieldInfo{index: f.Index, found: true}
	}
	if m, ok := findMethod(reflect.PointerTo(typ), name); ok {
		return &fieldInfo{found: true, isMethod: true, method: m}
	}
	return &fieldInfo{}
}

func findMethod(typ reflect.Type, name string) (string, bool) {
	if m, ok := typ.MethodByName(name); ok {
		return m.Name, true
	}
	camel := snakeToCamel(name)
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if strings.EqualFold(m.Name, name) || m.Name == camel {
			return m.Name, true
		}
	}
	return "", false
}

// snakeToCamel maps full_name to FullName.
func snakeToCamel(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var errNilDeref = errors.New("nil pointer dereference")

// getField implements `x.name`: struct fields and zero-argument methods, map
// keys (a missing key is absent, not an error), tuple and slice positions,
// and the fields of a bound template instance.
func getField(v any, name string) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("field %s of absent value", name)
	case map[string]any:
		return x[name], nil
	case Fields:
		return x[name], nil
	case Tuple:
		return indexSeq(reflect.ValueOf([]any(x)), name)
	case *Instance:
		if val, ok := x.Get(name); ok {
			return val, nil
		}
		return nil, fmt.Errorf("template %s has no field %s", x.t.Name(), name)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, errNilDeref
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		kv, ok := mapKey(rv.Type().Key(), name)
		if !ok {
			return nil, fmt.Errorf("cannot use %q as key of %s", name, rv.Type())
		}
		mv := rv.MapIndex(kv)
		if !mv.IsValid() {
			return nil, nil
		}
		return mv.Interface(), nil
	case reflect.Slice, reflect.Array:
		return indexSeq(rv, name)
	case reflect.Struct:
		return structField(rv, name)
	}
	return nil, fmt.Errorf("%T has no field %s", v, name)
}

func structField(sv reflect.Value, name string) (any, error) {
	info := globalFieldCache.lookup(sv.Type(), name)
	if !info.found {
		return nil, fmt.Errorf("%s has no field or method %s", sv.Type(), name)
	}
	if !info.isMethod {
		return sv.FieldByIndex(info.index).Interface(), nil
	}
	return callMethod(receiver(sv), info.method, nil)
}

// receiver returns a pointer to sv so that both value and pointer methods
// are callable. Unaddressable values are copied.
func receiver(sv reflect.Value) reflect.Value {
	if sv.CanAddr() {
		return sv.Addr()
	}
	ptr := reflect.New(sv.Type())
	ptr.Elem().Set(sv)
	return ptr
}

func indexSeq(rv reflect.Value, name string) (any, error) {
	i, err := strconv.Atoi(name)
	if err != nil {
		return nil, fmt.Errorf("%s has no field %s", rv.Type(), name)
	}
	if i < 0 || i >= rv.Len() {
		return nil, fmt.Errorf("index %d out of range for length %d", i, rv.Len())
	}
	return rv.Index(i).Interface(), nil
}

func mapKey(typ reflect.Type, key any) (reflect.Value, bool) {
	kv, ok := convertArg(key, typ)
	return kv, ok
}

// lookupKey reads key from the map rv.
func lookupKey(rv reflect.Value, key any) (any, bool, error) {
	kv, ok := mapKey(rv.Type().Key(), key)
	if !ok {
		return nil, false, fmt.Errorf("cannot use %T as key of %s", key, rv.Type())
	}
	mv := rv.MapIndex(kv)
	if !mv.IsValid() {
		return nil, false, nil
	}
	return mv.Interface(), true, nil
}

// getIndex implements `x[i]`. A missing map key is an error; `m.get(k)`
// yields an optional instead.
func getIndex(v, idx any) (any, error) {
	if v == nil {
		return nil, errors.New("index of absent value")
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, errNilDeref
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		mv, found, err := lookupKey(rv, idx)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("no key %#v in %s", idx, rv.Type())
		}
		return mv, nil
	case reflect.Slice, reflect.Array, reflect.String:
		i, ok := toInt(idx)
		if !ok {
			return nil, fmt.Errorf("index must be an integer, got %T", idx)
		}
		if i < 0 || i >= int64(rv.Len()) {
			return nil, fmt.Errorf("index %d out of range for length %d", i, rv.Len())
		}
		if rv.Kind() == reflect.String {
			return int64(rv.String()[i]), nil
		}
		return rv.Index(int(i)).Interface(), nil
	}
	return nil, fmt.Errorf("cannot index %T", v)
}

// ----------------------------- Calls ----------------------------------------

// callMethod calls an exported Go method with converted arguments.
func callMethod(rv reflect.Value, name string, args []any) (any, error) {
	m := rv.MethodByName(name)
	if !m.IsValid() {
		return nil, fmt.Errorf("%s has no method %s", rv.Type(), name)
	}
	return callFunc(m, name, args)
}

// invokeMethod implements `x.name(args)` for Go methods. Value receivers are
// copied so that pointer methods are reachable too.
func invokeMethod(recv any, name string, args []any) (any, error) {
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() {
		return nil, fmt.Errorf("method %s of absent value", name)
	}
	if m, ok := findMethod(rv.Type(), name); ok {
		return callMethod(rv, m, args)
	}
	if rv.Kind() != reflect.Pointer {
		ptr := receiver(rv)
		if m, ok := findMethod(ptr.Type(), name); ok {
			return callMethod(ptr, m, args)
		}
	}
	return nil, fmt.Errorf("%T has no method %s", recv, name)
}

// callFunc calls fn and accepts results of the form (T) or (T, error).
func callFunc(fn reflect.Value, name string, args []any) (any, error) {
	typ := fn.Type()
	in, err := convertArgs(typ, name, args)
	if err != nil {
		return nil, err
	}
	out := fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return resultValue(out[0]), nil
	}
	if errV := out[len(out)-1]; !errV.IsNil() {
		return nil, fmt.Errorf("%s: %w", name, errV.Interface().(error))
	}
	return resultValue(out[0]), nil
}

func resultValue(rv reflect.Value) any {
	if (rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer) && rv.IsNil() {
		return nil
	}
	return rv.Interface()
}

var errorType = reflect.TypeFor[error]()

// checkSignature validates a function at build time: arity and results.
func checkSignature(typ reflect.Type, nargs int) error {
	switch {
	case typ.IsVariadic() && nargs < typ.NumIn()-1:
		return fmt.Errorf("expects at least %d arguments, got %d", typ.NumIn()-1, nargs)
	case !typ.IsVariadic() && nargs != typ.NumIn():
		return fmt.Errorf("expects %d arguments, got %d", typ.NumIn(), nargs)
	}
	switch typ.NumOut() {
	case 1:
		return nil
	case 2:
		if typ.Out(1) == errorType {
			return nil
		}
	}
	return errors.New("must return one value, or a value and an error")
}

func convertArgs(typ reflect.Type, name string, args []any) ([]reflect.Value, error) {
	if err := checkSignature(typ, len(args)); err != nil {
		return nil, fmt.Errorf("%s %w", name, err)
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if typ.IsVariadic() && i >= typ.NumIn()-1 {
			pt = typ.In(typ.NumIn() - 1).Elem()
		} else {
			pt = typ.In(i)
		}
		v, ok := convertArg(a, pt)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d: cannot use %T as %s", name, i+1, a, pt)
		}
		in[i] = v
	}
	return in, nil
}

// convertArg adapts a template value to a Go parameter type. Numbers convert
// between numeric kinds and string-shaped values between string kinds.
func convertArg(v any, typ reflect.Type) (reflect.Value, bool) {
	if v == nil {
		switch typ.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(typ), true
		}
		return reflect.Value{}, false
	}
	if typ.Kind() == reflect.Interface {
		if inner, present, ok := unwrapOptional(v); ok && present && typ.NumMethod() == 0 {
			v = inner
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(typ) {
		return rv, true
	}
	switch {
	case isNumberKind(rv.Kind()) && isNumberKind(typ.Kind()):
		return rv.Convert(typ), true
	case typ.Kind() == reflect.String:
		if s, ok := stringOf(v); ok {
			return reflect.ValueOf(s).Convert(typ), true
		}
	}
	return reflect.Value{}, false
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
