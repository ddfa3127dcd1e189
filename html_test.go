package markup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const pageSrc = `
Page(title: String, items: Vec<Item>, note: Option<String>) {
	{doctype()}
	html[lang = "en"] {
		head { title { @title } }
		body {
			h1#top.title { @title }
			@if items.is_empty() {
				p.empty "Nothing here"
			} else {
				ul {
					@for (i, item) in items.iter().enumerate() {
						li[data-index = i, class = if item.done { "done" } else { "open" }] {
							@item.name
						}
					}
				}
			}
			@if let Some(n) = note { aside[title = n] { @n } }
			input[type = "text", value = title, disabled = false];
		}
	}
}
`

type item struct {
	Name string
	Done bool
}

// walk collects every element node below n in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

func TestRenderedPageParses(t *testing.T) {
	tpl := MustParse(pageSrc).Lookup("Page")
	out, err := tpl.RenderString(Fields{
		"title": `Q&A <"quoted">`,
		"items": []item{{Name: "<script>alert(1)</script>", Done: true}, {Name: "two"}},
		"note":  Some("see <below>"),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "<!DOCTYPE html><html lang=\"en\">"), out)

	doc, err := html.Parse(strings.NewReader(out))
	require.NoError(t, err)

	var lis, scripts []*html.Node
	var h1, aside, input *html.Node
	walk(doc, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Li:
			lis = append(lis, n)
		case atom.Script:
			scripts = append(scripts, n)
		case atom.H1:
			h1 = n
		case atom.Aside:
			aside = n
		case atom.Input:
			input = n
		}
	})

	assert.Empty(t, scripts, "user text must not create elements")
	require.Len(t, lis, 2)
	assert.Equal(t, "<script>alert(1)</script>", textOf(lis[0]))
	for i, want := range []string{"done", "open"} {
		cls, _ := attr(lis[i], "class")
		assert.Equal(t, want, cls)
		idx, _ := attr(lis[i], "data-index")
		assert.Equal(t, string(rune('0'+i)), idx)
	}

	require.NotNil(t, h1)
	id, _ := attr(h1, "id")
	assert.Equal(t, "top", id)
	assert.Equal(t, `Q&A <"quoted">`, textOf(h1))

	require.NotNil(t, aside)
	title, _ := attr(aside, "title")
	assert.Equal(t, "see <below>", title)

	require.NotNil(t, input)
	value, _ := attr(input, "value")
	assert.Equal(t, `Q&A <"quoted">`, value)
	_, disabled := attr(input, "disabled")
	assert.False(t, disabled)
	assert.Nil(t, input.FirstChild)
}

func TestRenderedPageWithoutItems(t *testing.T) {
	out, err := MustParse(pageSrc).Lookup("Page").RenderString(Fields{
		"title": "t",
		"items": []item{},
		"note":  None[string](),
	})
	require.NoError(t, err)

	doc, err := html.Parse(strings.NewReader(out))
	require.NoError(t, err)
	var found []string
	walk(doc, func(n *html.Node) { found = append(found, n.Data) })
	assert.Equal(t, []string{"html", "head", "title", "body", "h1", "p", "input"}, found)
}
