package threads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/types"
)

func TestBuild_Empty(t *testing.T) {
	tree := Build(nil)
	require.NotNil(t, tree)
	assert.Empty(t, tree)
}

func TestBuild_SingleRootWithReplies(t *testing.T) {
	tree := Build([]types.Comment{
		{ID: "c1", Content: "root", Score: 10},
		{ID: "c2", ParentID: "c1", Content: "first reply", Score: 3},
		{ID: "c3", ParentID: "c1", Content: "second reply", Score: 7},
		{ID: "c4", ParentID: "c3", Content: "nested", Score: 1},
	})

	require.Len(t, tree, 1)
	root := tree[0]
	assert.Equal(t, "c1", root.ID)

	require.Len(t, root.Replies, 2)
	assert.Equal(t, "c3", root.Replies[0].ID)
	assert.Equal(t, "c2", root.Replies[1].ID)

	require.Len(t, root.Replies[0].Replies, 1)
	assert.Equal(t, "c4", root.Replies[0].Replies[0].ID)
}

func TestBuild_OrphanSurfacesAsRoot(t *testing.T) {
	tree := Build([]types.Comment{
		{ID: "c1", Score: 5},
		{ID: "c2", ParentID: "missing", Score: 9},
	})

	require.Len(t, tree, 2)
	assert.Equal(t, "c2", tree[0].ID)
	assert.Equal(t, "c1", tree[1].ID)
}

func TestBuild_ScoreOrderingIsStableOnTies(t *testing.T) {
	tree := Build([]types.Comment{
		{ID: "root", Score: 0},
		{ID: "a", ParentID: "root", Score: 2},
		{ID: "b", ParentID: "root", Score: 2},
		{ID: "c", ParentID: "root", Score: 2},
	})

	require.Len(t, tree, 1)
	replies := tree[0].Replies
	require.Len(t, replies, 3)
	assert.Equal(t, "a", replies[0].ID)
	assert.Equal(t, "b", replies[1].ID)
	assert.Equal(t, "c", replies[2].ID)
}

func TestBuild_MultipleRootsOrderedByScore(t *testing.T) {
	tree := Build([]types.Comment{
		{ID: "low", Score: 1},
		{ID: "high", Score: 100},
		{ID: "mid", Score: 50},
	})

	require.Len(t, tree, 3)
	assert.Equal(t, "high", tree[0].ID)
	assert.Equal(t, "mid", tree[1].ID)
	assert.Equal(t, "low", tree[2].ID)
}

func TestBuild_SelfParentTreatedAsRoot(t *testing.T) {
	tree := Build([]types.Comment{
		{ID: "c1", ParentID: "c1", Score: 1},
	})

	require.Len(t, tree, 1)
	assert.Equal(t, "c1", tree[0].ID)
	assert.Empty(t, tree[0].Replies)
}
