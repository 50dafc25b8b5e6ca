package notification

import (
	"context"
	"time"
)

type (
	Type    string
	Channel string
)

// Notification types
const (
	TypeTaskPublished      Type = "task_published"
	TypeSubmissionCreated  Type = "submission_created"
	TypeSubmissionGraded   Type = "submission_graded"
	TypeSubmissionReturned Type = "submission_returned"
)

// Delivery channels
const (
	ChannelFeed     Channel = "feed"     // stored, listed by the feed endpoints
	ChannelRealtime Channel = "realtime" // pushed to the recipient's open streams
)

var allChannels = []Channel{ChannelFeed, ChannelRealtime}

// Event is what lifecycle transitions publish.
type Event struct {
	Type         Type
	RecipientIDs []string
	Title        string
	Message      string
	TaskID       string
	ServerID     string
}

// Notification is the record a recipient receives for an Event.
type Notification struct {
	ID          string    `json:"id" bson:"_id"`
	RecipientID string    `json:"recipient_id" bson:"recipient_id"`
	Type        Type      `json:"type" bson:"type"`
	Title       string    `json:"title" bson:"title"`
	Message     string    `json:"message" bson:"message"`
	TaskID      string    `json:"task_id,omitempty" bson:"task_id,omitempty"`
	ServerID    string    `json:"server_id,omitempty" bson:"server_id,omitempty"`
	IsRead      bool      `json:"is_read" bson:"is_read"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"` // UTC
}

// OutboxEntry is a notification whose delivery failed on some channels.
type OutboxEntry struct {
	ID            string       `json:"id"`
	Notification  Notification `json:"notification"`
	Channels      []Channel    `json:"channels"` // still to deliver
	Attempts      int          `json:"attempts"`
	NextAttemptAt time.Time    `json:"next_attempt_at"`
	LastError     string       `json:"last_error"`
}

// Sink receives lifecycle events. Publish never fails from the publisher's point of view.
type Sink interface {
	Publish(ctx context.Context, evt Event)
}

type (
	Repository interface {
		SaveNotifications(ctx context.Context, notifs ...Notification) error
		// ListNotifications returns the newest notifications of recipientID first; limit <= 0 means no limit.
		ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error)
		// MarkRead marks the given notifications of recipientID as read, all of them when ids is empty.
		MarkRead(ctx context.Context, recipientID string, ids ...string) (int, error)
	}

	// Hub pushes notifications to connected recipients.
	Hub interface {
		Push(recipientID string, notif Notification) error
	}

	Outbox interface {
		Enqueue(ctx context.Context, entry OutboxEntry) error
		// Due returns up to limit entries whose NextAttemptAt is not after now.
		Due(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)
		Reschedule(ctx context.Context, entry OutboxEntry) error
		Remove(ctx context.Context, id string) error
	}
)

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, Event) {}
