package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/types"
)

type stubVoteConfirmer struct {
	calls []types.VoteDirection
	err   error
}

func (s *stubVoteConfirmer) ConfirmVote(_ context.Context, _ string, vote types.VoteDirection) error {
	s.calls = append(s.calls, vote)
	return s.err
}

func TestVotes_ToggleSequenceAdjustsScore(t *testing.T) {
	ctx := context.Background()
	v := NewVotes(&stubVoteConfirmer{})
	const serverScore = 10

	// none -> up: +1
	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))
	assert.Equal(t, types.VoteUp, v.Current("p1"))
	assert.Equal(t, 11, v.DisplayScore("p1", serverScore))

	// up -> down: -2, no intermediate none
	require.NoError(t, v.Toggle(ctx, "p1", types.VoteDown))
	assert.Equal(t, types.VoteDown, v.Current("p1"))
	assert.Equal(t, 9, v.DisplayScore("p1", serverScore))

	// down -> none: +1 (toggle-off)
	require.NoError(t, v.Toggle(ctx, "p1", types.VoteDown))
	assert.Equal(t, types.VoteNone, v.Current("p1"))
	assert.Equal(t, 10, v.DisplayScore("p1", serverScore))
}

func TestVotes_FailedConfirmationRollsBack(t *testing.T) {
	ctx := context.Background()
	confirmer := &stubVoteConfirmer{}
	v := NewVotes(confirmer)

	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))
	assert.Equal(t, 11, v.DisplayScore("p1", 10))

	confirmer.err = errors.New("upstream rejected vote")
	err := v.Toggle(ctx, "p1", types.VoteDown)
	require.Error(t, err)

	// Rolled back exactly to the pre-transition snapshot.
	assert.Equal(t, types.VoteUp, v.Current("p1"))
	assert.Equal(t, 11, v.DisplayScore("p1", 10))

	// A later toggle starts from the rolled-back state.
	confirmer.err = nil
	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))
	assert.Equal(t, types.VoteNone, v.Current("p1"))
	assert.Equal(t, 10, v.DisplayScore("p1", 10))
}

func TestVotes_ConfirmerSeesRequestedState(t *testing.T) {
	ctx := context.Background()
	confirmer := &stubVoteConfirmer{}
	v := NewVotes(confirmer)

	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))
	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))

	assert.Equal(t, []types.VoteDirection{types.VoteUp, types.VoteNone}, confirmer.calls)
}

func TestVotes_AdjustmentsIndependentPerPost(t *testing.T) {
	ctx := context.Background()
	v := NewVotes(&stubVoteConfirmer{})

	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))
	require.NoError(t, v.Toggle(ctx, "p2", types.VoteDown))

	assert.Equal(t, 1, v.Adjustment("p1"))
	assert.Equal(t, -1, v.Adjustment("p2"))
	assert.Equal(t, 0, v.Adjustment("p3"))
}

func TestVotes_ToggleValidation(t *testing.T) {
	ctx := context.Background()
	v := NewVotes(&stubVoteConfirmer{})

	assert.ErrorIs(t, v.Toggle(ctx, "", types.VoteUp), types.ErrPostIDEmpty)
	assert.ErrorIs(t, v.Toggle(ctx, "p1", types.VoteNone), types.ErrVoteInvalid)
}

func TestVotes_ResetRebuildsFromLedger(t *testing.T) {
	ctx := context.Background()
	v := NewVotes(&stubVoteConfirmer{})

	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))

	v.Reset(map[string]types.VoteDirection{
		"p2": types.VoteDown,
		"p3": types.VoteNone,
	})

	assert.Equal(t, types.VoteNone, v.Current("p1"))
	assert.Equal(t, types.VoteDown, v.Current("p2"))
	assert.Equal(t, types.VoteNone, v.Current("p3"))
	assert.Equal(t, 0, v.Adjustment("p1"))
}

func TestVotes_ClearDropsEverything(t *testing.T) {
	ctx := context.Background()
	v := NewVotes(&stubVoteConfirmer{})

	require.NoError(t, v.Toggle(ctx, "p1", types.VoteUp))
	v.Clear()

	assert.Equal(t, types.VoteNone, v.Current("p1"))
	assert.Equal(t, 0, v.Adjustment("p1"))
}
