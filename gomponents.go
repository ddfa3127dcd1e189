package markup

import (
	"io"

	g "maragu.dev/gomponents"
)

// ----------------------------- gomponents interop ---------------------------
//
// Any g.Node is a Renderer, so gomponents trees can be passed as field values
// and render unescaped. Attribute nodes (g.Attr) can also be spread into an
// element's attribute list with `..attrs`.

type nodeTyper interface {
	Type() g.NodeType
}

// renderAttrNode writes item if it is a gomponents attribute node. Attribute
// nodes render their own leading space.
func renderAttrNode(w io.Writer, item any) (bool, error) {
	n, ok := item.(g.Node)
	if !ok || isNilRef(item) {
		return false, nil
	}
	if t, ok := n.(nodeTyper); !ok || t.Type() != g.AttributeType {
		return false, nil
	}
	return true, n.Render(w)
}

// Node returns the fragment as a gomponents node.
func (f *Fragment) Node() g.Node { return g.NodeFunc(f.Render) }

// Node returns the instance as a gomponents node.
func (i *Instance) Node() g.Node { return g.NodeFunc(i.Render) }

// FromNodes groups gomponents nodes into one value for a template field.
func FromNodes(nodes ...g.Node) Renderer { return g.Group(nodes) }
