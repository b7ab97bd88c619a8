package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/logger"
	"github.com/threadlens/threadlens/types"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(logger.NewNop(), dir)
	require.NoError(t, err)

	votes := types.VoteTable{
		"alice": {"p1": types.VoteUp, "p2": types.VoteDown},
		"bob":   {"p1": types.VoteDown},
	}
	bookmarks := types.BookmarkTable{
		"alice": {"p1": {ID: "p1", Title: "saved", SavedAt: "2026-08-01T10:00:00Z"}},
	}

	require.NoError(t, store.SaveVotes(votes))
	require.NoError(t, store.SaveBookmarks(bookmarks))

	reopened, err := NewFileStore(logger.NewNop(), dir)
	require.NoError(t, err)

	loadedVotes, err := reopened.LoadVotes()
	require.NoError(t, err)
	assert.Equal(t, votes, loadedVotes)

	loadedBookmarks, err := reopened.LoadBookmarks()
	require.NoError(t, err)
	assert.Equal(t, bookmarks, loadedBookmarks)
}

func TestFileStore_MissingFilesLoadEmpty(t *testing.T) {
	store, err := NewFileStore(logger.NewNop(), t.TempDir())
	require.NoError(t, err)

	votes, err := store.LoadVotes()
	require.NoError(t, err)
	assert.Empty(t, votes)

	bookmarks, err := store.LoadBookmarks()
	require.NoError(t, err)
	assert.Empty(t, bookmarks)
}

func TestFileStore_CorruptFileResetsTable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, votesFile), []byte("{not json"), 0o644))

	store, err := NewFileStore(logger.NewNop(), dir)
	require.NoError(t, err)

	votes, err := store.LoadVotes()
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestFileStore_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(logger.NewNop(), dir)
	require.NoError(t, err)

	require.NoError(t, store.SaveVotes(types.VoteTable{"alice": {"p1": types.VoteUp}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, votesFile, entries[0].Name())
}
