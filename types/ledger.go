package types

// Ledger owns the per-user vote and bookmark maps. Mutations are synchronous
// in memory and flip a dirty flag; durable writes happen on a background
// flush schedule and once more at shutdown.
type Ledger interface {
	LifecycleManager
	GetVote(userID, postID string) VoteDirection
	SetVote(userID, postID string, vote VoteDirection) error
	GetVotes(userID string) map[string]VoteDirection
	GetBookmarks(userID string) []SavedPost
	AddBookmark(userID string, post SavedPost) error
	RemoveBookmark(userID, postID string) (bool, error)
	Flush() error
}

// VoteTable and BookmarkTable are the durable document shapes: the full
// in-memory maps, rewritten wholesale on every flush.
type VoteTable map[string]map[string]VoteDirection

type BookmarkTable map[string]map[string]SavedPost

// SnapshotStore persists the two ledger documents. It is deliberately not a
// database: no transactions, no concurrent-writer protection, one owning
// process. Swappable for a real datastore without changing the Ledger
// contract.
type SnapshotStore interface {
	LoadVotes() (VoteTable, error)
	LoadBookmarks() (BookmarkTable, error)
	SaveVotes(VoteTable) error
	SaveBookmarks(BookmarkTable) error
	Close() error
}
