package markup

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf8"
)

// ----------------------------- Functions ------------------------------------

// Funcs maps names to Go functions callable from templates as name(args).
// A function returns one value, or a value and an error.
type Funcs map[string]any

// DefaultFuncs returns the functions every template can call.
func DefaultFuncs() Funcs {
	return Funcs{
		"format":  format,
		"raw":     func(v any) Raw { return Raw(toText(v)) },
		"doctype": Doctype,
		"len":     length,
		"string":  toText,
		"upper":   func(v any) string { return strings.ToUpper(toText(v)) },
		"lower":   func(v any) string { return strings.ToLower(toText(v)) },
		"trim":    func(v any) string { return fastTrim(toText(v)) },
		"truncate": func(v any, n int) string {
			return truncate(toText(v), n)
		},
		"join": func(v any, sep string) (string, error) {
			items, err := collect(v)
			if err != nil {
				return "", err
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = toText(item)
			}
			return strings.Join(parts, sep), nil
		},
	}
}

// format is Sprintf over template values; optionals format as their payload.
func format(f string, args ...any) string {
	for i, a := range args {
		if inner, present, ok := unwrapOptional(a); ok {
			if present {
				args[i] = inner
			} else {
				args[i] = "None"
			}
		}
	}
	return fmt.Sprintf(f, args...)
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if n < 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for j := range s {
		if i == n {
			return s[:j]
		}
		i++
	}
	return s
}

// rustFormat translates a format!() string ({} and {:?} placeholders) into a
// Printf format.
func rustFormat(s string) (string, int, error) {
	var sb strings.Builder
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%':
			sb.WriteString("%%")
		case c == '{' && i+1 < len(s) && s[i+1] == '{':
			sb.WriteByte('{')
			i++
		case c == '}' && i+1 < len(s) && s[i+1] == '}':
			sb.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return "", 0, fmt.Errorf("unterminated placeholder in format string")
			}
			switch spec := s[i+1 : i+end]; spec {
			case "":
				sb.WriteString("%v")
			case ":?":
				sb.WriteString("%#v")
			default:
				return "", 0, fmt.Errorf("unsupported placeholder {%s}", spec)
			}
			n++
			i += end
		case c == '}':
			return "", 0, fmt.Errorf("unmatched } in format string")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String(), n, nil
}

// ----------------------------- Methods --------------------------------------

// builtinMethod implements the methods every value has. ok is false when
// name is not one of them, so the call falls through to Go methods.
func builtinMethod(name string, recv any, args []any) (v any, ok bool, err error) {
	switch len(args) {
	case 0:
		v, ok, err = builtinMethod0(name, recv)
	case 1:
		v, ok, err = builtinMethod1(name, recv, args[0])
	}
	return v, ok, err
}

func builtinMethod0(name string, recv any) (any, bool, error) {
	switch name {
	case "iter", "into_iter", "clone", "as_str", "as_ref", "to_owned", "borrow", "as_slice":
		return recv, true, nil
	case "enumerate":
		return enumerated{src: recv}, true, nil
	case "rev":
		return reversed{src: recv}, true, nil
	case "len", "count":
		n, err := length(recv)
		return n, true, err
	case "is_empty":
		n, err := length(recv)
		return n == 0, true, err
	case "to_string":
		return toText(recv), true, nil
	case "to_uppercase", "upper":
		return strings.ToUpper(toText(recv)), true, nil
	case "to_lowercase", "lower":
		return strings.ToLower(toText(recv)), true, nil
	case "trim":
		return fastTrim(toText(recv)), true, nil
	case "is_some":
		return !IsAbsent(recv), true, nil
	case "is_none":
		return IsAbsent(recv), true, nil
	case "unwrap":
		if IsAbsent(recv) {
			return nil, true, fmt.Errorf("unwrap of None")
		}
		inner, _, _ := unwrapOptional(recv)
		return inner, true, nil
	case "abs":
		n, ok := toNumber(recv)
		if !ok {
			return nil, true, fmt.Errorf("abs of %T", recv)
		}
		if n.isFloat {
			return math.Abs(n.f), true, nil
		}
		return max(n.i, -n.i), true, nil
	case "keys", "values":
		return mapColumn(recv, name == "keys")
	case "collect":
		items, err := collect(recv)
		return items, true, err
	}
	return nil, false, nil
}

func builtinMethod1(name string, recv, arg any) (any, bool, error) {
	switch name {
	case "pow":
		v, err := pow(recv, arg)
		return v, true, err
	case "get":
		rv := reflect.ValueOf(recv)
		if rv.Kind() != reflect.Map {
			return nil, false, nil
		}
		v, found, err := lookupKey(rv, arg)
		if err != nil || !found {
			return noneValue{}, true, err
		}
		return someValue{v: v}, true, nil
	case "unwrap_or":
		if IsAbsent(recv) {
			return arg, true, nil
		}
		inner, _, _ := unwrapOptional(recv)
		return inner, true, nil
	case "starts_with", "ends_with":
		s, ok1 := stringOf(recv)
		p, ok2 := stringOf(arg)
		if !ok1 || !ok2 {
			return nil, true, fmt.Errorf("%s expects strings, got %T and %T", name, recv, arg)
		}
		if name == "starts_with" {
			return strings.HasPrefix(s, p), true, nil
		}
		return strings.HasSuffix(s, p), true, nil
	case "contains":
		if s, ok := stringOf(recv); ok {
			p, ok := stringOf(arg)
			if !ok {
				return nil, true, fmt.Errorf("contains expects a string, got %T", arg)
			}
			return strings.Contains(s, p), true, nil
		}
		found := false
		err := each(recv, func(item any) error {
			if equalValues(item, arg) {
				found = true
			}
			return nil
		})
		return found, true, err
	case "join":
		sep, ok := stringOf(arg)
		if !ok {
			return nil, true, fmt.Errorf("join expects a string separator, got %T", arg)
		}
		items, err := collect(recv)
		if err != nil {
			return nil, true, err
		}
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = toText(item)
		}
		return strings.Join(parts, sep), true, nil
	case "skip", "take":
		n, ok := toInt(arg)
		if !ok || n < 0 {
			return nil, true, fmt.Errorf("%s expects a non-negative integer, got %v", name, arg)
		}
		items, err := collect(recv)
		if err != nil {
			return nil, true, err
		}
		n = min(n, int64(len(items)))
		if name == "skip" {
			return items[n:], true, nil
		}
		return items[:n], true, nil
	}
	return nil, false, nil
}

// mapColumn returns the keys or values of a map in key order.
func mapColumn(recv any, keys bool) (any, bool, error) {
	rv := reflect.ValueOf(recv)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map {
		return nil, false, nil
	}
	var out []any
	err := each(rv.Interface(), func(item any) error {
		pair := item.(Tuple)
		if keys {
			out = append(out, pair[0])
		} else {
			out = append(out, pair[1])
		}
		return nil
	})
	return out, true, err
}
