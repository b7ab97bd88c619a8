package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/types"
)

type stubBookmarkConfirmer struct {
	saveErr   error
	unsaveErr error
}

func (s *stubBookmarkConfirmer) ConfirmSave(_ context.Context, _ types.SavedPost) error {
	return s.saveErr
}

func (s *stubBookmarkConfirmer) ConfirmUnsave(_ context.Context, _ string) error {
	return s.unsaveErr
}

func TestBookmarks_SaveInsertsAtHead(t *testing.T) {
	ctx := context.Background()
	b := NewBookmarks(&stubBookmarkConfirmer{})

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1", Title: "first"}))
	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p2", Title: "second"}))

	posts := b.SavedPosts()
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[0].ID)
	assert.Equal(t, "p1", posts[1].ID)

	require.NoError(t, b.Unsave(ctx, "p1"))

	posts = b.SavedPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, "p2", posts[0].ID)
	assert.False(t, b.IsSaved("p1"))
	assert.True(t, b.IsSaved("p2"))
}

func TestBookmarks_ResaveMovesToHead(t *testing.T) {
	ctx := context.Background()
	b := NewBookmarks(&stubBookmarkConfirmer{})

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1"}))
	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p2"}))
	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1"}))

	posts := b.SavedPosts()
	require.Len(t, posts, 2)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, "p2", posts[1].ID)
}

func TestBookmarks_FailedSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	confirmer := &stubBookmarkConfirmer{}
	b := NewBookmarks(confirmer)

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1"}))

	confirmer.saveErr = errors.New("upstream rejected save")
	err := b.Save(ctx, types.SavedPost{ID: "p2"})
	require.Error(t, err)

	assert.False(t, b.IsSaved("p2"))
	posts := b.SavedPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
}

func TestBookmarks_FailedUnsaveRollsBack(t *testing.T) {
	ctx := context.Background()
	confirmer := &stubBookmarkConfirmer{}
	b := NewBookmarks(confirmer)

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1"}))
	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p2"}))

	confirmer.unsaveErr = errors.New("upstream rejected unsave")
	err := b.Unsave(ctx, "p1")
	require.Error(t, err)

	// Presence and position both restored.
	assert.True(t, b.IsSaved("p1"))
	posts := b.SavedPosts()
	require.Len(t, posts, 2)
	assert.Equal(t, "p2", posts[0].ID)
	assert.Equal(t, "p1", posts[1].ID)
}

type hookBookmarkConfirmer struct {
	onSave   func(types.SavedPost) error
	onUnsave func(string) error
}

func (h *hookBookmarkConfirmer) ConfirmSave(_ context.Context, post types.SavedPost) error {
	if h.onSave != nil {
		return h.onSave(post)
	}
	return nil
}

func (h *hookBookmarkConfirmer) ConfirmUnsave(_ context.Context, postID string) error {
	if h.onUnsave != nil {
		return h.onUnsave(postID)
	}
	return nil
}

func TestBookmarks_RollbackPreservesConcurrentSave(t *testing.T) {
	ctx := context.Background()

	applied := make(chan struct{})
	release := make(chan struct{})
	confirmer := &hookBookmarkConfirmer{
		onSave: func(post types.SavedPost) error {
			if post.ID == "p1" {
				close(applied)
				<-release
				return errors.New("upstream rejected save")
			}
			return nil
		},
	}
	b := NewBookmarks(confirmer)

	done := make(chan error, 1)
	go func() {
		done <- b.Save(ctx, types.SavedPost{ID: "p1"})
	}()

	// p2 commits while p1 is still waiting for confirmation.
	<-applied
	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p2"}))
	close(release)
	require.Error(t, <-done)

	assert.False(t, b.IsSaved("p1"))
	assert.True(t, b.IsSaved("p2"))
	posts := b.SavedPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, "p2", posts[0].ID)
}

func TestBookmarks_RollbackPreservesConcurrentUnsave(t *testing.T) {
	ctx := context.Background()

	applied := make(chan struct{})
	release := make(chan struct{})
	confirmer := &hookBookmarkConfirmer{
		onSave: func(post types.SavedPost) error {
			if post.ID == "p3" {
				close(applied)
				<-release
				return errors.New("upstream rejected save")
			}
			return nil
		},
	}
	b := NewBookmarks(confirmer)

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1"}))
	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p2"}))

	done := make(chan error, 1)
	go func() {
		done <- b.Save(ctx, types.SavedPost{ID: "p3"})
	}()

	<-applied
	require.NoError(t, b.Unsave(ctx, "p1"))
	close(release)
	require.Error(t, <-done)

	assert.False(t, b.IsSaved("p3"))
	assert.False(t, b.IsSaved("p1"))
	posts := b.SavedPosts()
	require.Len(t, posts, 1)
	assert.Equal(t, "p2", posts[0].ID)
}

func TestBookmarks_ResetRebuildsFromLedger(t *testing.T) {
	ctx := context.Background()
	b := NewBookmarks(&stubBookmarkConfirmer{})

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "local"}))

	b.Reset([]types.SavedPost{
		{ID: "p9", SavedAt: "2026-08-03T10:00:00Z"},
		{ID: "p8", SavedAt: "2026-08-01T10:00:00Z"},
	})

	assert.False(t, b.IsSaved("local"))
	assert.True(t, b.IsSaved("p9"))

	posts := b.SavedPosts()
	require.Len(t, posts, 2)
	assert.Equal(t, "p9", posts[0].ID)
}

func TestBookmarks_ClearDropsEverything(t *testing.T) {
	ctx := context.Background()
	b := NewBookmarks(&stubBookmarkConfirmer{})

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1"}))
	b.Clear()

	assert.False(t, b.IsSaved("p1"))
	assert.Empty(t, b.SavedPosts())
}

func TestBookmarks_SavedPostsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := NewBookmarks(&stubBookmarkConfirmer{})

	require.NoError(t, b.Save(ctx, types.SavedPost{ID: "p1", Title: "original"}))

	posts := b.SavedPosts()
	posts[0].Title = "mutated"

	assert.Equal(t, "original", b.SavedPosts()[0].Title)
}
