package markup

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type celsius float64

type label string

type stringer struct{}

func (stringer) String() string { return "<s>" }

func render(t *testing.T, v any) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, Render(&sb, v))
	return sb.String()
}

func TestRender(t *testing.T) {
	n := 7
	var nilPtr *int
	tests := []struct {
		name string
		v    any
		want string
	}{
		{"nil", nil, ""},
		{"string", `a<b & "c"`, `a&lt;b &amp; &quot;c&quot;`},
		{"bytes", []byte("<x>"), "&lt;x&gt;"},
		{"int", 42, "42"},
		{"negative int64", int64(-3), "-3"},
		{"uint8", uint8(255), "255"},
		{"float", 1.5, "1.5"},
		{"float32", float32(0.25), "0.25"},
		{"whole float", 10.0, "10"},
		{"bool", true, "true"},
		{"char", Char('<'), "&lt;"},
		{"raw", Raw("<b>bold</b>"), "<b>bold</b>"},
		{"doctype", Doctype(), "<!DOCTYPE html>"},
		{"stringer", stringer{}, "&lt;s&gt;"},
		{"error", errors.New("bad <input>"), "bad &lt;input&gt;"},
		{"pointer", &n, "7"},
		{"nil pointer", nilPtr, ""},
		{"nil renderer pointer", (*Raw)(nil), ""},
		{"nil stringer pointer", (*stringer)(nil), ""},
		{"nil instance", (*Instance)(nil), ""},
		{"nil option pointer", (*Option[int])(nil), ""},
		{"named float", celsius(21.5), "21.5"},
		{"named string", label("<l>"), "&lt;l&gt;"},
		{"some", Some("x&y"), "x&amp;y"},
		{"none", None[string](), ""},
		{"nested option", Some(Some(3)), "3"},
		{"fallback", []int{1, 2}, "[1 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.v))
		})
	}
}

func TestRenderInstanceNotEscapedTwice(t *testing.T) {
	inst, err := MustParse(`B(x: String) { b { @x } }`).Lookup("B").With(Fields{"x": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, "<b>&lt;&amp;&gt;</b>", render(t, inst))
	assert.Equal(t, "<b>&lt;&amp;&gt;</b>", render(t, Some(inst)))
}

func TestAbsentAndBool(t *testing.T) {
	var nilPtr *string
	s := "x"
	tests := []struct {
		name                    string
		v                       any
		absent, isTrue, isFalse bool
	}{
		{"nil", nil, true, false, false},
		{"nil pointer", nilPtr, true, false, false},
		{"nil option pointer", (*Option[int])(nil), true, false, false},
		{"nil booler pointer", (*toggle)(nil), true, false, false},
		{"pointer to some", ptr(Some(1)), false, false, false},
		{"pointer to none", ptr(None[int]()), true, false, false},
		{"pointer", &s, false, false, false},
		{"none", None[int](), true, false, false},
		{"some", Some(1), false, false, false},
		{"true", true, false, true, false},
		{"false", false, false, false, true},
		{"pointer to bool", ptr(true), false, true, false},
		{"zero int", 0, false, false, false},
		{"empty string", "", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.absent, IsAbsent(tt.v), "IsAbsent")
			assert.Equal(t, tt.isTrue, IsTrue(tt.v), "IsTrue")
			assert.Equal(t, tt.isFalse, IsFalse(tt.v), "IsFalse")
		})
	}
}

func TestOption(t *testing.T) {
	v, ok := Some(3).Get()
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	v, ok = None[int]().Get()
	assert.False(t, ok)
	assert.Zero(t, v)

	var zero Option[string]
	assert.True(t, zero.IsAbsent())
}

type toggle bool

func (t toggle) IsTrue() bool  { return bool(t) }
func (t toggle) IsFalse() bool { return !bool(t) }

func TestBoolerAttribute(t *testing.T) {
	assert.Equal(t, `<option selected>`, renderFragment(t, `option[selected = s];`, Vars{"s": toggle(true)}))
	assert.Equal(t, `<option>`, renderFragment(t, `option[selected = s];`, Vars{"s": toggle(false)}))
}

func TestNilPointersWithMethods(t *testing.T) {
	tests := []struct {
		name string
		src  string
		v    any
		want string
	}{
		{"raw in attribute and body", `div[a = p] { @p }`, (*Raw)(nil), `<div></div>`},
		{"option in attribute and body", `div[a = p] { @p }`, (*Option[int])(nil), `<div></div>`},
		{"instance in body", `div { @p }`, (*Instance)(nil), `<div></div>`},
		{"booler as test", `@if p { "yes" } else { "no" }`, (*toggle)(nil), "no"},
		{"booler as attribute", `option[selected = p];`, (*toggle)(nil), `<option>`},
		{"option pattern", `@if let Some(x) = p { @x } else { "none" }`, (*Option[int])(nil), "none"},
		{"stringer as text", `{p.to_string()}`, (*stringer)(nil), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, renderFragment(t, tt.src, Vars{"p": tt.v}))
		})
	}
}

func TestBindFromNilInstance(t *testing.T) {
	tpl := MustParse(`B(x: i32) { @x }`).Lookup("B")
	_, err := tpl.RenderString((*Instance)(nil))
	assert.EqualError(t, err, "template B: cannot bind fields from nil *markup.Instance")
}
