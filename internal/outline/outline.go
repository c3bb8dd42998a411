// Package outline models the parsed section tree of a legal document and
// the pure tree operations the amendment pipeline needs: canonical section
// numbering, pre-order flattening, depth and predecessor lookup, locked
// ancestor context assembly, rule annotation, and bottom-up processing
// order. The tree is produced by an external parser; this package only ever
// adds the per-node rule list, everything else is read-only.
package outline

import "strings"

// SectionNode is one numbered section of the document. Children are nested
// sub-sections. Rules is written only by Annotate.
type SectionNode struct {
	SectionNumber        string         `json:"sectionNumber"`
	SectionHeading       string         `json:"sectionHeading,omitempty"`
	Text                 string         `json:"text"`
	Level                int            `json:"level"`
	AdditionalParagraphs []string       `json:"additionalParagraphs,omitempty"`
	Children             []*SectionNode `json:"children,omitempty"`
	Rules                []string       `json:"rules,omitempty"`
}

// CanonicalNumber normalizes a section number to the single-trailing-period
// form used everywhere in the pipeline ("8.1" and "8.1.." both become
// "8.1."). Empty input stays empty.
func CanonicalNumber(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimRight(s, ".")
	if s == "" {
		return ""
	}
	return s + "."
}

// Walk visits every node in pre-order (document order), passing the node's
// depth from the root (root sections have depth 0). Returning false from fn
// stops the walk.
func Walk(nodes []*SectionNode, fn func(n *SectionNode, depth int) bool) {
	var visit func(ns []*SectionNode, depth int) bool
	visit = func(ns []*SectionNode, depth int) bool {
		for _, n := range ns {
			if !fn(n, depth) {
				return false
			}
			if !visit(n.Children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(nodes, 0)
}

// Flatten returns every node in pre-order.
func Flatten(nodes []*SectionNode) []*SectionNode {
	var out []*SectionNode
	Walk(nodes, func(n *SectionNode, _ int) bool {
		out = append(out, n)
		return true
	})
	return out
}

// Find returns the node whose canonical section number matches, or nil.
func Find(nodes []*SectionNode, sectionNumber string) *SectionNode {
	want := CanonicalNumber(sectionNumber)
	var found *SectionNode
	Walk(nodes, func(n *SectionNode, _ int) bool {
		if CanonicalNumber(n.SectionNumber) == want {
			found = n
			return false
		}
		return true
	})
	return found
}

// Depth returns the tree depth of a section (root sections are 0). The
// second return is false when the section is not in the outline.
func Depth(nodes []*SectionNode, sectionNumber string) (int, bool) {
	want := CanonicalNumber(sectionNumber)
	depth, ok := 0, false
	Walk(nodes, func(n *SectionNode, d int) bool {
		if CanonicalNumber(n.SectionNumber) == want {
			depth, ok = d, true
			return false
		}
		return true
	})
	return depth, ok
}

// LastSection returns the canonical number of the final node in document
// order, i.e. the last node visited by a full pre-order traversal, which is
// the deepest trailing sub-section rather than the last top-level sibling.
func LastSection(nodes []*SectionNode) string {
	last := ""
	Walk(nodes, func(n *SectionNode, _ int) bool {
		last = CanonicalNumber(n.SectionNumber)
		return true
	})
	return last
}

// Predecessor returns the canonical number of the section immediately
// before the given one in document order. The second return is false when
// the section is the first in the document or is absent from the outline.
func Predecessor(nodes []*SectionNode, sectionNumber string) (string, bool) {
	want := CanonicalNumber(sectionNumber)
	flat := Flatten(nodes)
	for i, n := range flat {
		if CanonicalNumber(n.SectionNumber) == want {
			if i == 0 {
				return "", false
			}
			return CanonicalNumber(flat[i-1].SectionNumber), true
		}
	}
	return "", false
}

// FullText concatenates a node's own text, its additional paragraphs, and
// all nested children in document order. Used as read-only placement
// context when generating new sections under an anchor.
func FullText(n *SectionNode) string {
	var sb strings.Builder
	var emit func(node *SectionNode)
	emit = func(node *SectionNode) {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(headingLine(node))
		sb.WriteString(node.Text)
		for _, p := range node.AdditionalParagraphs {
			sb.WriteString("\n")
			sb.WriteString(p)
		}
		for _, c := range node.Children {
			emit(c)
		}
	}
	emit(n)
	return sb.String()
}

// AncestorContext returns the locked context strings for a section: one
// entry per ancestor, outermost first. Each entry carries the ancestor's
// number, heading, and own text (children excluded) so a generation call
// understands the surrounding structure without being asked to edit it.
func AncestorContext(nodes []*SectionNode, sectionNumber string) []string {
	want := CanonicalNumber(sectionNumber)
	var path []*SectionNode
	var out []string

	var visit func(ns []*SectionNode) bool
	visit = func(ns []*SectionNode) bool {
		for _, n := range ns {
			if CanonicalNumber(n.SectionNumber) == want {
				for _, a := range path {
					out = append(out, headingLine(a)+a.Text)
				}
				return true
			}
			path = append(path, n)
			if visit(n.Children) {
				return true
			}
			path = path[:len(path)-1]
		}
		return false
	}
	visit(nodes)
	return out
}

func headingLine(n *SectionNode) string {
	line := "Section " + CanonicalNumber(n.SectionNumber)
	if n.SectionHeading != "" {
		line += " " + n.SectionHeading
	}
	return line + "\n"
}
