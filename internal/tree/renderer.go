package tree

import (
	"sort"
	"strings"
)

const (
	branchGlyphConstant       = "├── "
	lastBranchGlyphConstant   = "└── "
	continuationGlyphConstant = "│   "
	blankGlyphConstant        = "    "
)

// Node is a labelled tree node. Nodes are not modified after construction.
type Node struct {
	Label    string
	Children []Node
}

// Leaf constructs a node without children.
func Leaf(label string) Node {
	return Node{Label: label}
}

// Branch constructs a node holding copies of the provided children.
func Branch(label string, children ...Node) Node {
	return Node{Label: label, Children: append([]Node(nil), children...)}
}

// FromGrouping builds one branch per key with its values as leaves. Keys and leaves are
// sorted lexicographically; the grouping is not modified.
func FromGrouping(grouping map[string][]string) []Node {
	keys := make([]string, 0, len(grouping))
	for key := range grouping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	nodes := make([]Node, 0, len(keys))
	for _, key := range keys {
		leaves := append([]string(nil), grouping[key]...)
		sort.Strings(leaves)

		children := make([]Node, 0, len(leaves))
		for _, leaf := range leaves {
			children = append(children, Leaf(leaf))
		}
		nodes = append(nodes, Node{Label: key, Children: children})
	}
	return nodes
}

// Render returns the header line followed by one line per node.
func Render(header string, nodes []Node) []string {
	lines := []string{header}
	return renderChildren(lines, "", nodes)
}

// String joins the rendered lines with newlines.
func String(header string, nodes []Node) string {
	return strings.Join(Render(header, nodes), "\n") + "\n"
}

func renderChildren(lines []string, prefix string, nodes []Node) []string {
	for nodeIndex, node := range nodes {
		glyph := branchGlyphConstant
		childPrefix := prefix + continuationGlyphConstant
		if nodeIndex == len(nodes)-1 {
			glyph = lastBranchGlyphConstant
			childPrefix = prefix + blankGlyphConstant
		}
		lines = append(lines, prefix+glyph+node.Label)
		lines = renderChildren(lines, childPrefix, node.Children)
	}
	return lines
}
