// Package comments assembles a post's flat comment list into reply threads.
package comments

import "blogshop/internal/models"

// Node is one comment and its direct replies, oldest first.
type Node struct {
	Comment  models.Comment `json:"comment"`
	Children []*Node        `json:"children"`
}

// BuildTree turns comments sorted by creation time into a forest of roots.
//
// A comment is attached under its parent only when the parent appears
// earlier in flat; otherwise (missing parent, self reference, forward
// reference) it becomes a root. This keeps the result acyclic and every
// comment reachable exactly once. Repeated ids keep their first occurrence.
func BuildTree(flat []models.Comment) []*Node {
	type slot struct {
		node *Node
		pos  int
	}
	byID := make(map[int64]slot, len(flat))
	order := make([]*Node, 0, len(flat))
	for _, c := range flat {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		n := &Node{Comment: c, Children: []*Node{}}
		byID[c.ID] = slot{node: n, pos: len(order)}
		order = append(order, n)
	}

	roots := []*Node{}
	for i, n := range order {
		if pid := n.Comment.ParentID; pid != nil {
			if parent, ok := byID[*pid]; ok && parent.pos < i {
				parent.node.Children = append(parent.node.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}

// Walk visits every node depth first along with its nesting depth.
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}
