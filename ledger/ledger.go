package ledger

import (
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// Manager is the in-memory vote and bookmark ledger. Mutations take effect
// immediately under the lock and mark the touched table dirty; Flush writes
// dirty tables through the snapshot store and is driven by the scheduler,
// with one final best-effort flush during Stop.
type Manager struct {
	logger         types.Logger
	metrics        types.MetricsManager
	store          types.SnapshotStore
	votes          types.VoteTable
	bookmarks      types.BookmarkTable
	votesDirty     bool
	bookmarksDirty bool
	mu             sync.RWMutex
	state          atomic.Value
}

func NewManager(logger types.Logger, metrics types.MetricsManager, config *types.LedgerConfig) (*Manager, error) {
	var store types.SnapshotStore
	var err error

	switch config.Store {
	case "clover":
		store, err = NewCloverStore(logger, config.Dir)
	case "file", "":
		store, err = NewFileStore(logger, config.Dir)
	default:
		return nil, types.Errorf(types.ErrLedgerStoreInvalid, "%q", config.Store)
	}

	if err != nil {
		return nil, err
	}

	return newManager(logger, metrics, store), nil
}

func newManager(logger types.Logger, metrics types.MetricsManager, store types.SnapshotStore) *Manager {
	m := &Manager{
		logger:    logger,
		metrics:   metrics,
		store:     store,
		votes:     make(types.VoteTable),
		bookmarks: make(types.BookmarkTable),
	}

	m.state.Store(StateStopped)
	return m
}

func (m *Manager) Start() error {
	if !m.state.CompareAndSwap(StateStopped, StateStarting) {
		return types.ErrServerAlreadyRunning
	}

	defer func() {
		if m.state.Load() == StateStarting {
			m.state.Store(StateRunning)
		}
	}()

	votes, err := m.store.LoadVotes()
	if err != nil {
		m.state.Store(StateStopped)
		return types.WrapError(err, "failed to load vote ledger")
	}

	bookmarks, err := m.store.LoadBookmarks()
	if err != nil {
		m.state.Store(StateStopped)
		return types.WrapError(err, "failed to load bookmark ledger")
	}

	m.mu.Lock()
	m.votes = votes
	m.bookmarks = bookmarks
	m.votesDirty = false
	m.bookmarksDirty = false
	m.mu.Unlock()

	m.logger.Info("Ledger started",
		zap.Int("vote_users", len(votes)),
		zap.Int("bookmark_users", len(bookmarks)))
	return nil
}

func (m *Manager) Stop() error {
	if !m.state.CompareAndSwap(StateRunning, StateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		m.state.Store(StateStopped)
	}()

	if err := m.Flush(); err != nil {
		m.logger.Error("Final ledger flush failed", zap.Error(err))
	}

	if err := m.store.Close(); err != nil {
		return types.WrapError(err, "failed to close ledger store")
	}

	m.logger.Info("Ledger stopped gracefully")
	return nil
}

func (m *Manager) IsRunning() bool {
	return m.state.Load() == StateRunning
}

func (m *Manager) GetVote(userID, postID string) types.VoteDirection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.votes[userID][postID]
}

// SetVote records the user's vote. VoteNone removes the entry entirely so
// the table never accumulates no-vote tombstones.
func (m *Manager) SetVote(userID, postID string, vote types.VoteDirection) error {
	if userID == "" {
		return types.ErrUserIDEmpty
	}
	if postID == "" {
		return types.ErrPostIDEmpty
	}
	if !vote.Valid() {
		return types.Errorf(types.ErrVoteInvalid, "%q", vote)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if vote == types.VoteNone {
		if userVotes, exists := m.votes[userID]; exists {
			if _, voted := userVotes[postID]; !voted {
				return nil
			}
			delete(userVotes, postID)
			if len(userVotes) == 0 {
				delete(m.votes, userID)
			}
			m.votesDirty = true
		}
		return nil
	}

	userVotes, exists := m.votes[userID]
	if !exists {
		userVotes = make(map[string]types.VoteDirection)
		m.votes[userID] = userVotes
	}

	if userVotes[postID] == vote {
		return nil
	}

	userVotes[postID] = vote
	m.votesDirty = true
	return nil
}

func (m *Manager) GetVotes(userID string) map[string]types.VoteDirection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	votes := make(map[string]types.VoteDirection, len(m.votes[userID]))
	for postID, vote := range m.votes[userID] {
		votes[postID] = vote
	}
	return votes
}

// GetBookmarks returns the user's saved posts newest first.
func (m *Manager) GetBookmarks(userID string) []types.SavedPost {
	m.mu.RLock()
	defer m.mu.RUnlock()

	saved := make([]types.SavedPost, 0, len(m.bookmarks[userID]))
	for _, post := range m.bookmarks[userID] {
		saved = append(saved, post)
	}

	sort.Slice(saved, func(i, j int) bool {
		if saved[i].SavedAt != saved[j].SavedAt {
			return saved[i].SavedAt > saved[j].SavedAt
		}
		return saved[i].ID > saved[j].ID
	})

	return saved
}

func (m *Manager) AddBookmark(userID string, post types.SavedPost) error {
	if userID == "" {
		return types.ErrUserIDEmpty
	}
	if post.ID == "" {
		return types.ErrPostIDEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	userBookmarks, exists := m.bookmarks[userID]
	if !exists {
		userBookmarks = make(map[string]types.SavedPost)
		m.bookmarks[userID] = userBookmarks
	}

	userBookmarks[post.ID] = post
	m.bookmarksDirty = true
	return nil
}

func (m *Manager) RemoveBookmark(userID, postID string) (bool, error) {
	if userID == "" {
		return false, types.ErrUserIDEmpty
	}
	if postID == "" {
		return false, types.ErrPostIDEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	userBookmarks, exists := m.bookmarks[userID]
	if !exists {
		return false, nil
	}

	if _, saved := userBookmarks[postID]; !saved {
		return false, nil
	}

	delete(userBookmarks, postID)
	if len(userBookmarks) == 0 {
		delete(m.bookmarks, userID)
	}
	m.bookmarksDirty = true
	return true, nil
}

// Flush writes dirty tables through the snapshot store. The lock is held
// for the duration, which keeps mutations strictly ordered against the
// durable state at the cost of briefly blocking writers.
func (m *Manager) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.votesDirty {
		if err := m.store.SaveVotes(m.votes); err != nil {
			m.recordFlush("votes", "error")
			return types.WrapError(err, "failed to flush vote ledger")
		}
		m.votesDirty = false
		m.recordFlush("votes", "success")
	}

	if m.bookmarksDirty {
		if err := m.store.SaveBookmarks(m.bookmarks); err != nil {
			m.recordFlush("bookmarks", "error")
			return types.WrapError(err, "failed to flush bookmark ledger")
		}
		m.bookmarksDirty = false
		m.recordFlush("bookmarks", "success")
	}

	return nil
}

func (m *Manager) recordFlush(table, result string) {
	if m.metrics == nil {
		return
	}

	m.metrics.Counter("ledger_flush_total", map[string]string{
		"table":  table,
		"result": result,
	}).Inc()
}
