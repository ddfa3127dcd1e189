package markup

import (
	"html/template"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type benchUser struct {
	Name  string
	Admin bool
}

type benchItem struct {
	Name  string
	Price int
}

var (
	markupTpl *Template
	htmlTpl   *template.Template
	benchData = Fields{
		"title": "  Products  ",
		"user":  benchUser{Name: "Orgware", Admin: true},
		"items": []benchItem{{Name: "Alpha", Price: 100}, {Name: "Beta", Price: 120}},
	}
)

func init() {
	markupTpl = MustParse(`
Page(title: String, user: User, items: Vec<Item>) {
	html {
		head { title { {title.trim().to_uppercase()} } }
		body {
			ul {
				@for item in items {
					li { @item.name " - " @item.price }
				}
			}
			@if user.admin {
				.admin { "Hi, " @user.name }
			} else {
				div { "Welcome!" }
			}
		}
	}
}`).Lookup("Page")

	htmlTpl = template.Must(template.New("test").Funcs(template.FuncMap{
		"trim":  fastTrim,
		"upper": strings.ToUpper,
	}).Parse(`<html><head><title>{{.Title | trim | upper }}</title></head><body><ul>` +
		`{{range .Items}}<li>{{.Name}} - {{.Price}}</li>{{end}}</ul>` +
		`{{if .User.Admin}}<div class="admin">Hi, {{.User.Name}}</div>{{else}}<div>Welcome!</div>{{end}}` +
		`</body></html>`))
}

func TestBenchmarkTemplatesAgree(t *testing.T) {
	got, err := markupTpl.RenderString(benchData)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, htmlTpl.Execute(&sb, struct {
		Title string
		User  benchUser
		Items []benchItem
	}{"  Products  ", benchData["user"].(benchUser), benchData["items"].([]benchItem)}))
	assert.Equal(t, sb.String(), got)
}

func BenchmarkMarkup(b *testing.B) {
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = markupTpl.Render(io.Discard, benchData)
	}
}

func BenchmarkMarkupInstance(b *testing.B) {
	inst, err := markupTpl.With(benchData)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = inst.Render(io.Discard)
	}
}

func BenchmarkMarkupString(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = markupTpl.RenderString(benchData)
	}
}

func BenchmarkHTMLTemplate(b *testing.B) {
	data := struct {
		Title string
		User  benchUser
		Items []benchItem
	}{
		Title: "  Products  ",
		User:  benchUser{Name: "Orgware", Admin: true},
		Items: []benchItem{{Name: "Alpha", Price: 100}, {Name: "Beta", Price: 120}},
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = htmlTpl.Execute(io.Discard, data)
	}
}

func BenchmarkEscape(b *testing.B) {
	s := strings.Repeat("plain text with a <tag> & an \"attribute\" ", 8)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = EscapeTo(io.Discard, s)
	}
}
