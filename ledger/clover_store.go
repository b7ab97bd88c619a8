package ledger

import (
	"path/filepath"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

const (
	votesCollection     = "votes"
	bookmarksCollection = "bookmarks"
	payloadField        = "payload"
)

// CloverStore persists each ledger table as a single document holding the
// JSON-encoded table. Saving replaces the collection contents wholesale,
// mirroring the file store's rewrite-everything contract.
type CloverStore struct {
	db     *clover.DB
	logger types.Logger
}

func NewCloverStore(logger types.Logger, dir string) (*CloverStore, error) {
	if dir == "" {
		dir = "./data"
	}

	db, err := clover.Open(filepath.Join(dir, "ledger.db"))
	if err != nil {
		return nil, types.WrapError(err, "failed to open ledger database")
	}

	store := &CloverStore{db: db, logger: logger}

	for _, name := range []string{votesCollection, bookmarksCollection} {
		if err := store.ensureCollection(name); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return store, nil
}

func (c *CloverStore) LoadVotes() (types.VoteTable, error) {
	votes := make(types.VoteTable)
	if data, ok := c.readPayload(votesCollection); ok {
		if err := utils.Unmarshal(data, &votes); err != nil {
			c.logger.Warn("Vote ledger document corrupt, starting empty", zap.Error(err))
			votes = make(types.VoteTable)
		}
	}
	return votes, nil
}

func (c *CloverStore) LoadBookmarks() (types.BookmarkTable, error) {
	bookmarks := make(types.BookmarkTable)
	if data, ok := c.readPayload(bookmarksCollection); ok {
		if err := utils.Unmarshal(data, &bookmarks); err != nil {
			c.logger.Warn("Bookmark ledger document corrupt, starting empty", zap.Error(err))
			bookmarks = make(types.BookmarkTable)
		}
	}
	return bookmarks, nil
}

func (c *CloverStore) SaveVotes(votes types.VoteTable) error {
	return c.savePayload(votesCollection, votes)
}

func (c *CloverStore) SaveBookmarks(bookmarks types.BookmarkTable) error {
	return c.savePayload(bookmarksCollection, bookmarks)
}

func (c *CloverStore) Close() error {
	if err := c.db.Close(); err != nil {
		return types.WrapError(err, "failed to close ledger database")
	}
	return nil
}

func (c *CloverStore) ensureCollection(name string) error {
	exists, err := c.db.HasCollection(name)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := c.db.CreateCollection(name); err != nil {
			return types.WrapError(err, "failed to create collection")
		}
	}

	return nil
}

func (c *CloverStore) readPayload(collection string) ([]byte, bool) {
	docs, err := c.db.Query(collection).FindAll()
	if err != nil {
		c.logger.Warn("Failed to read ledger collection, starting empty",
			zap.String("collection", collection), zap.Error(err))
		return nil, false
	}

	if len(docs) == 0 {
		return nil, false
	}

	payload, ok := docs[0].Get(payloadField).(string)
	if !ok {
		c.logger.Warn("Ledger document missing payload, starting empty",
			zap.String("collection", collection))
		return nil, false
	}

	return []byte(payload), true
}

func (c *CloverStore) savePayload(collection string, table interface{}) error {
	data, err := utils.Marshal(table)
	if err != nil {
		return types.WrapError(err, "failed to marshal ledger table")
	}

	if err := c.db.Query(collection).Delete(); err != nil {
		return types.WrapError(err, "failed to clear ledger collection")
	}

	doc := clover.NewDocument()
	doc.Set(payloadField, string(data))

	if err := c.db.Insert(collection, doc); err != nil {
		return types.WrapError(err, "failed to insert ledger document")
	}

	return nil
}
