package reconcile

import (
	"sync"

	"github.com/threadlens/threadlens/types"
)

// applyThenConfirm is the optimistic-update transaction shared by the vote
// and bookmark reconcilers: apply mutates local state and returns a restore
// closure capturing the pre-transition snapshot; confirm asks the server to
// make the transition durable. On confirmation failure the snapshot is
// restored exactly and the failure surfaces to the caller.
func applyThenConfirm(apply func() (restore func()), confirm func() error) error {
	restore := apply()

	if err := confirm(); err != nil {
		restore()
		return types.WrapError(err, "confirmation failed, local state rolled back")
	}

	return nil
}

// keyedLocks hands out one mutex per key so mutations on the same post
// serialize while unrelated posts proceed independently. A second toggle on
// a post must observe the first toggle's outcome, never its pre-rollback
// snapshot.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedLocks) lock(key string) {
	k.mu.Lock()
	l, exists := k.locks[key]
	if !exists {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
}

func (k *keyedLocks) unlock(key string) {
	k.mu.Lock()
	l := k.locks[key]
	k.mu.Unlock()

	l.Unlock()
}
