package threads

import (
	"sort"

	"github.com/threadlens/threadlens/types"
)

// Build assembles a flat comment list into a reply tree. A comment whose
// parent is missing from the input (truncated by depth limits or deleted
// upstream) surfaces as a root rather than disappearing. Siblings are
// ordered by score descending; ties keep their input order.
func Build(comments []types.Comment) []*types.CommentNode {
	if len(comments) == 0 {
		return []*types.CommentNode{}
	}

	nodes := make(map[string]*types.CommentNode, len(comments))
	ordered := make([]*types.CommentNode, 0, len(comments))

	for i := range comments {
		node := &types.CommentNode{
			Comment: comments[i],
			Replies: []*types.CommentNode{},
		}
		nodes[node.ID] = node
		ordered = append(ordered, node)
	}

	roots := make([]*types.CommentNode, 0)
	for _, node := range ordered {
		parent, exists := nodes[node.ParentID]
		if node.ParentID == "" || !exists || parent == node {
			roots = append(roots, node)
			continue
		}
		parent.Replies = append(parent.Replies, node)
	}

	sortByScore(roots)
	for _, node := range ordered {
		sortByScore(node.Replies)
	}

	return roots
}

func sortByScore(nodes []*types.CommentNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Score > nodes[j].Score
	})
}
