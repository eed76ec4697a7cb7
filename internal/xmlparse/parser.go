// Package xmlparse turns a CAD export payload into a generic element tree.
//
// Exports arrive from an external vendor, so the parser is deliberately
// hostile to anything beyond plain elements: DOCTYPE declarations are
// rejected outright, which means entity definitions (and with them external
// entity resolution) can never take effect. The decoder itself performs no
// network or filesystem access. Element-presence validation belongs to the
// mapper, not here; a well-formed document with missing fields parses fine.
package xmlparse

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Namespace is the root namespace every export document must declare.
const Namespace = "urn:cad:export:call"

const rootName = "CadExport"

// ParseError describes a rejected or malformed document.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xml parse: %s: %v", e.Reason, e.Err)
	}
	return "xml parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Node is one element in the parsed tree.
type Node struct {
	Name     string // local name
	Space    string // namespace URI
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Parse decodes data into an element tree rooted at the export element.
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Reason: "malformed document", Err: err}
		}
		switch t := tok.(type) {
		case xml.Directive:
			if isDoctype(t) {
				return nil, &ParseError{Reason: "doctype declarations are forbidden"}
			}
		case xml.StartElement:
			n := &Node{Name: t.Name.Local, Space: t.Name.Space, Attrs: attrMap(t.Attr)}
			switch {
			case root == nil:
				if t.Name.Local != rootName || t.Name.Space != Namespace {
					return nil, &ParseError{Reason: fmt.Sprintf("unexpected root <%s> in namespace %q, want <%s> in %q", t.Name.Local, t.Name.Space, rootName, Namespace)}
				}
				root = n
			case len(stack) == 0:
				return nil, &ParseError{Reason: "content after document root"}
			default:
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}
	if root == nil {
		return nil, &ParseError{Reason: "no document root"}
	}
	if len(stack) != 0 {
		return nil, &ParseError{Reason: "truncated document"}
	}
	return root, nil
}

// Child returns the first direct child with the given local name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildrenNamed returns all direct children with the given local name in
// document order.
func (n *Node) ChildrenNamed(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// ChildText returns the trimmed text of the named child. The boolean is
// false when the element is absent, letting callers distinguish a missing
// element from one that is present but empty.
func (n *Node) ChildText(name string) (string, bool) {
	c := n.Child(name)
	if c == nil {
		return "", false
	}
	return strings.TrimSpace(c.Text), true
}

// Attr returns the named attribute value, or "".
func (n *Node) Attr(name string) string {
	return n.Attrs[name]
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

func isDoctype(d xml.Directive) bool {
	s := strings.TrimSpace(string(d))
	return len(s) >= 7 && strings.EqualFold(s[:7], "DOCTYPE")
}
