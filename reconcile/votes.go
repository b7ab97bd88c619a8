package reconcile

import (
	"context"
	"sync"

	"github.com/threadlens/threadlens/types"
)

// VoteConfirmer makes an optimistically-applied vote durable on the server.
type VoteConfirmer interface {
	ConfirmVote(ctx context.Context, postID string, vote types.VoteDirection) error
}

// Votes is the client-held optimistic overlay for vote state: the current
// vote per post plus a signed score adjustment that accumulates across
// repeated toggles, so the displayed score is always the server-reported
// score plus the adjustment. It is rebuilt from the server ledger on login
// and discarded on logout; the ledger stays the source of truth.
type Votes struct {
	confirmer   VoteConfirmer
	votes       map[string]types.VoteDirection
	adjustments map[string]int
	mu          sync.RWMutex
	locks       *keyedLocks
}

func NewVotes(confirmer VoteConfirmer) *Votes {
	return &Votes{
		confirmer:   confirmer,
		votes:       make(map[string]types.VoteDirection),
		adjustments: make(map[string]int),
		locks:       newKeyedLocks(),
	}
}

// Toggle applies a vote click. Clicking the active direction retracts the
// vote; clicking the other direction switches to it directly. The transition
// is applied locally first, then confirmed; a failed confirmation restores
// the pre-transition vote and adjustment before the error returns.
func (v *Votes) Toggle(ctx context.Context, postID string, direction types.VoteDirection) error {
	if postID == "" {
		return types.ErrPostIDEmpty
	}
	if direction != types.VoteUp && direction != types.VoteDown {
		return types.Errorf(types.ErrVoteInvalid, "%q", direction)
	}

	v.locks.lock(postID)
	defer v.locks.unlock(postID)

	v.mu.RLock()
	prev := v.votes[postID]
	v.mu.RUnlock()

	next := direction
	if prev == direction {
		next = types.VoteNone
	}
	delta := types.Delta(prev, next)

	return applyThenConfirm(
		func() func() {
			v.apply(postID, next, delta)
			return func() { v.apply(postID, prev, -delta) }
		},
		func() error {
			return v.confirmer.ConfirmVote(ctx, postID, next)
		},
	)
}

func (v *Votes) apply(postID string, vote types.VoteDirection, delta int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if vote == types.VoteNone {
		delete(v.votes, postID)
	} else {
		v.votes[postID] = vote
	}

	adjusted := v.adjustments[postID] + delta
	if adjusted == 0 {
		delete(v.adjustments, postID)
	} else {
		v.adjustments[postID] = adjusted
	}
}

func (v *Votes) Current(postID string) types.VoteDirection {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.votes[postID]
}

func (v *Votes) Adjustment(postID string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.adjustments[postID]
}

// DisplayScore is the score to show for a post right now.
func (v *Votes) DisplayScore(postID string, serverScore int) int {
	return serverScore + v.Adjustment(postID)
}

// Reset rebuilds the overlay from the server ledger, dropping any local
// adjustments. Called on login and re-authentication.
func (v *Votes) Reset(votes map[string]types.VoteDirection) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.votes = make(map[string]types.VoteDirection, len(votes))
	for postID, vote := range votes {
		if vote == types.VoteNone {
			continue
		}
		v.votes[postID] = vote
	}
	v.adjustments = make(map[string]int)
}

// Clear discards all overlay state. Called on logout.
func (v *Votes) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.votes = make(map[string]types.VoteDirection)
	v.adjustments = make(map[string]int)
}
