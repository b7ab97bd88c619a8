package types

import (
	"time"
)

const (
	EventPostVote    = "post.vote"
	EventPostSaved   = "post.saved"
	EventPostUnsaved = "post.unsaved"
)

type Event struct {
	ID        string      `json:"id"`
	Action    string      `json:"action"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

type EventHandler func(Event)

// Publisher fans events out to sinks. Publish is fire-and-forget: sink
// failures are logged, never returned to the mutating request.
type Publisher interface {
	LifecycleManager
	Publish(action string, payload interface{})
	Subscribe(action string, handler EventHandler)
}

// VoteEvent is the payload of EventPostVote.
type VoteEvent struct {
	UserID   string        `json:"user_id"`
	PostID   string        `json:"post_id"`
	Vote     VoteDirection `json:"vote"`
	Previous VoteDirection `json:"previous"`
}

// BookmarkEvent is the payload of EventPostSaved / EventPostUnsaved.
type BookmarkEvent struct {
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
	Saved  bool   `json:"saved"`
}
