package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadlens/threadlens/logger"
	"github.com/threadlens/threadlens/types"
	"github.com/threadlens/threadlens/utils"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	d, err := NewDispatcher(context.Background(), logger.NewNop(), nil, &types.EventsConfig{
		Enabled:   true,
		WebhookDB: filepath.Join(t.TempDir(), "webhooks.db"),
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() { _ = d.Stop() })
	return d
}

func TestDispatcher_SubscribersReceiveEvents(t *testing.T) {
	d := newTestDispatcher(t)

	var mu sync.Mutex
	var received []types.Event

	d.Subscribe(types.EventPostVote, func(event types.Event) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	})

	d.Publish(types.EventPostVote, types.VoteEvent{
		UserID: "alice", PostID: "p1", Vote: types.VoteUp,
	})
	d.Publish(types.EventPostSaved, types.BookmarkEvent{
		UserID: "alice", PostID: "p2", Saved: true,
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, types.EventPostVote, received[0].Action)
	assert.NotEmpty(t, received[0].ID)
	assert.Equal(t, "threadlens", received[0].Source)
}

func TestDispatcher_PublishWhenStoppedIsNoOp(t *testing.T) {
	d, err := NewDispatcher(context.Background(), logger.NewNop(), nil, &types.EventsConfig{
		WebhookDB: filepath.Join(t.TempDir(), "webhooks.db"),
	})
	require.NoError(t, err)

	called := false
	d.Subscribe(types.EventPostVote, func(types.Event) { called = true })

	d.Publish(types.EventPostVote, nil)
	assert.False(t, called)
}

func TestWebhookManager_RegisterListDelete(t *testing.T) {
	d := newTestDispatcher(t)
	wm := d.Webhooks()

	wh, err := wm.Register(types.EventPostSaved, "https://example.com/hook")
	require.NoError(t, err)
	assert.NotEmpty(t, wh.ID)
	assert.NotEmpty(t, wh.Secret)
	assert.True(t, wh.Enabled)

	hooks, err := wm.List()
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, wh.ID, hooks[0].ID)

	require.NoError(t, wm.Delete(wh.ID))
	assert.ErrorIs(t, wm.Delete(wh.ID), types.ErrWebhookNotFound)

	hooks, err = wm.List()
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func TestWebhookManager_RejectsEmptyURL(t *testing.T) {
	d := newTestDispatcher(t)

	_, err := d.Webhooks().Register(types.EventPostVote, "")
	assert.ErrorIs(t, err, types.ErrWebhookURLInvalid)
}

func TestWebhookManager_DeliversSignedPayload(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotSignature string
	delivered := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotBody = body
		gotSignature = r.Header.Get("X-Signature")
		mu.Unlock()
		delivered <- struct{}{}
	}))
	defer srv.Close()

	d := newTestDispatcher(t)
	wh, err := d.Webhooks().Register(types.EventPostVote, srv.URL)
	require.NoError(t, err)

	d.Publish(types.EventPostVote, types.VoteEvent{UserID: "alice", PostID: "p1", Vote: types.VoteUp})

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()

	var event types.Event
	require.NoError(t, utils.Unmarshal(gotBody, &event))
	assert.Equal(t, types.EventPostVote, event.Action)

	require.True(t, strings.HasPrefix(gotSignature, "sha256="))
	mac := hmac.New(sha256.New, []byte(wh.Secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookManager_EventFilter(t *testing.T) {
	calls := 0
	delivered := make(chan struct{}, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		delivered <- struct{}{}
	}))
	defer srv.Close()

	d := newTestDispatcher(t)
	_, err := d.Webhooks().Register(types.EventPostSaved, srv.URL)
	require.NoError(t, err)

	// Only the saved event matches the registration.
	d.Publish(types.EventPostVote, nil)
	d.Publish(types.EventPostSaved, nil)

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	assert.Equal(t, 1, calls)
}
