package annotate

import (
	"sort"
	"strings"
)

const (
	LabelSeparator = ">"

	// UngroupedCategory collects labels that have no usable segment.
	UngroupedCategory = "Ungrouped"

	// a deeper prefix becomes a category once it has more than this many
	// distinct children or direct leaves
	categoryThreshold = 2
)

// LabelHierarchyNode is one distinct prefix path of the label set.
type LabelHierarchyNode struct {
	Path            string
	Depth           int
	ParentPath      string
	DirectLeafCount int
	ChildPaths      map[string]struct{}
}

// SplitLabel returns the trimmed, non-empty segments of a label.
func SplitLabel(label string) []string {
	parts := strings.Split(label, LabelSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinPath(segs []string) string {
	return strings.Join(segs, " "+LabelSeparator+" ")
}

// BuildHierarchy registers every prefix of every label. DirectLeafCount counts
// labels whose full path ends at the node.
func BuildHierarchy(labels []string) map[string]*LabelHierarchyNode {
	nodes := make(map[string]*LabelHierarchyNode)
	for _, label := range labels {
		segs := SplitLabel(label)
		for i := 1; i <= len(segs); i++ {
			path := joinPath(segs[:i])
			n, ok := nodes[path]
			if !ok {
				n = &LabelHierarchyNode{Path: path, Depth: i, ChildPaths: map[string]struct{}{}}
				if i > 1 {
					n.ParentPath = joinPath(segs[:i-1])
				}
				nodes[path] = n
			}
			if i == len(segs) {
				n.DirectLeafCount++
			}
			if i > 1 {
				nodes[n.ParentPath].ChildPaths[path] = struct{}{}
			}
		}
	}
	return nodes
}

func (n *LabelHierarchyNode) qualifies() bool {
	if n.Depth == 1 {
		return true
	}
	return len(n.ChildPaths) > categoryThreshold || n.DirectLeafCount > categoryThreshold
}

// Group assigns every label to the deepest qualifying prefix of its path.
func Group(labels []string) map[string]string {
	nodes := BuildHierarchy(labels)
	out := make(map[string]string, len(labels))
	for _, label := range labels {
		segs := SplitLabel(label)
		if len(segs) == 0 {
			out[label] = UngroupedCategory
			continue
		}
		category := segs[0]
		for i := 2; i <= len(segs); i++ {
			path := joinPath(segs[:i])
			if nodes[path].qualifies() {
				category = path
			}
		}
		out[label] = category
	}
	return out
}

// Categories returns the distinct categories of an assignment in sorted order.
func Categories(assign map[string]string) []string {
	seen := make(map[string]struct{}, len(assign))
	out := make([]string, 0)
	for _, c := range assign {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// SortedLabels returns the keys of a label dictionary in a stable order.
func SortedLabels(dict map[string]string) []string {
	out := make([]string, 0, len(dict))
	for k := range dict {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
