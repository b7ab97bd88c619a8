package ledger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

const (
	votesFile     = "votes.json"
	bookmarksFile = "bookmarks.json"
)

// FileStore keeps each ledger table in its own JSON file and rewrites the
// whole file on every save via a temp-file rename, so a crash mid-write
// leaves the previous snapshot intact. A corrupt or unreadable file resets
// that table to empty rather than blocking startup.
type FileStore struct {
	dir    string
	logger types.Logger
}

func NewFileStore(logger types.Logger, dir string) (*FileStore, error) {
	if dir == "" {
		dir = "./data"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.WrapError(err, "failed to create ledger directory")
	}

	return &FileStore{dir: dir, logger: logger}, nil
}

func (f *FileStore) LoadVotes() (types.VoteTable, error) {
	votes := make(types.VoteTable)
	if data, ok := f.readTable(votesFile); ok {
		if err := utils.Unmarshal(data, &votes); err != nil {
			f.logger.Warn("Vote ledger file corrupt, starting empty", zap.Error(err))
			votes = make(types.VoteTable)
		}
	}
	return votes, nil
}

func (f *FileStore) LoadBookmarks() (types.BookmarkTable, error) {
	bookmarks := make(types.BookmarkTable)
	if data, ok := f.readTable(bookmarksFile); ok {
		if err := utils.Unmarshal(data, &bookmarks); err != nil {
			f.logger.Warn("Bookmark ledger file corrupt, starting empty", zap.Error(err))
			bookmarks = make(types.BookmarkTable)
		}
	}
	return bookmarks, nil
}

func (f *FileStore) SaveVotes(votes types.VoteTable) error {
	return f.saveTable(votesFile, votes)
}

func (f *FileStore) SaveBookmarks(bookmarks types.BookmarkTable) error {
	return f.saveTable(bookmarksFile, bookmarks)
}

func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) readTable(name string) ([]byte, bool) {
	path := filepath.Join(f.dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.logger.Warn("Failed to read ledger file, starting empty",
				zap.String("path", path), zap.Error(err))
		}
		return nil, false
	}

	return data, true
}

func (f *FileStore) saveTable(name string, table interface{}) error {
	data, err := utils.Marshal(table)
	if err != nil {
		return types.WrapError(err, "failed to marshal ledger table")
	}

	path := filepath.Join(f.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.WrapError(err, "failed to write ledger temp file")
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return types.WrapError(err, "failed to replace ledger file")
	}

	return nil
}
