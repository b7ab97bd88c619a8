package reconcile

import (
	"context"
	"sync"

	"github.com/threadlens/threadlens/types"
)

// BookmarkConfirmer makes an optimistically-applied save or unsave durable
// on the server.
type BookmarkConfirmer interface {
	ConfirmSave(ctx context.Context, post types.SavedPost) error
	ConfirmUnsave(ctx context.Context, postID string) error
}

// Bookmarks is the optimistic overlay for saved posts: a presence flag per
// post plus the ordered list of snapshots shown on the saved-posts screen,
// newest first. Same transaction shape as Votes, over a boolean instead of
// a signed adjustment.
type Bookmarks struct {
	confirmer BookmarkConfirmer
	saved     map[string]bool
	posts     []types.SavedPost
	mu        sync.RWMutex
	locks     *keyedLocks
}

func NewBookmarks(confirmer BookmarkConfirmer) *Bookmarks {
	return &Bookmarks{
		confirmer: confirmer,
		saved:     make(map[string]bool),
		posts:     []types.SavedPost{},
		locks:     newKeyedLocks(),
	}
}

// Save marks the post saved and inserts its snapshot at the head of the
// saved-posts list, then confirms; rollback restores that post's entry.
func (b *Bookmarks) Save(ctx context.Context, post types.SavedPost) error {
	if post.ID == "" {
		return types.ErrPostIDEmpty
	}

	b.locks.lock(post.ID)
	defer b.locks.unlock(post.ID)

	return applyThenConfirm(
		func() func() {
			restore := b.snapshotPost(post.ID)
			b.mu.Lock()
			b.saved[post.ID] = true
			b.posts = append([]types.SavedPost{post}, b.removeLocked(post.ID)...)
			b.mu.Unlock()
			return restore
		},
		func() error {
			return b.confirmer.ConfirmSave(ctx, post)
		},
	)
}

// Unsave removes the post from the overlay, then confirms; rollback
// restores the previous presence flag and list position.
func (b *Bookmarks) Unsave(ctx context.Context, postID string) error {
	if postID == "" {
		return types.ErrPostIDEmpty
	}

	b.locks.lock(postID)
	defer b.locks.unlock(postID)

	return applyThenConfirm(
		func() func() {
			restore := b.snapshotPost(postID)
			b.mu.Lock()
			delete(b.saved, postID)
			b.posts = b.removeLocked(postID)
			b.mu.Unlock()
			return restore
		},
		func() error {
			return b.confirmer.ConfirmUnsave(ctx, postID)
		},
	)
}

func (b *Bookmarks) IsSaved(postID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.saved[postID]
}

// SavedPosts returns the overlay's saved posts, newest first.
func (b *Bookmarks) SavedPosts() []types.SavedPost {
	b.mu.RLock()
	defer b.mu.RUnlock()

	posts := make([]types.SavedPost, len(b.posts))
	copy(posts, b.posts)
	return posts
}

// Reset rebuilds the overlay from the server ledger's newest-first list.
// Called on login and re-authentication.
func (b *Bookmarks) Reset(posts []types.SavedPost) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.saved = make(map[string]bool, len(posts))
	b.posts = make([]types.SavedPost, len(posts))
	copy(b.posts, posts)
	for _, post := range posts {
		b.saved[post.ID] = true
	}
}

// Clear discards all overlay state. Called on logout.
func (b *Bookmarks) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.saved = make(map[string]bool)
	b.posts = []types.SavedPost{}
}

// snapshotPost captures one post's entry: its presence flag and, when
// present, its stored snapshot and list index. The per-post locks only
// serialize transitions on the same post, so rollback must not touch any
// other post's state; a concurrent commit on another post survives it.
func (b *Bookmarks) snapshotPost(postID string) func() {
	b.mu.RLock()
	wasSaved := b.saved[postID]
	var prev types.SavedPost
	index := -1
	for i, post := range b.posts {
		if post.ID == postID {
			prev = post
			index = i
			break
		}
	}
	b.mu.RUnlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.posts = b.removeLocked(postID)
		if !wasSaved {
			delete(b.saved, postID)
			return
		}

		b.saved[postID] = true
		at := index
		if at < 0 || at > len(b.posts) {
			at = len(b.posts)
		}
		rest := append([]types.SavedPost{prev}, b.posts[at:]...)
		b.posts = append(b.posts[:at:at], rest...)
	}
}

// removeLocked returns the list without postID. Caller holds the write lock.
func (b *Bookmarks) removeLocked(postID string) []types.SavedPost {
	posts := make([]types.SavedPost, 0, len(b.posts))
	for _, post := range b.posts {
		if post.ID == postID {
			continue
		}
		posts = append(posts, post)
	}
	return posts
}
