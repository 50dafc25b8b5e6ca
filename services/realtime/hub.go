// Package realtime fans notifications out to the open streams of their recipients.
package realtime

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/classync/classync/core/notification"
)

const defaultBufferSize = 16

var ErrSubscribersFull = errors.New("every stream of the recipient is full")

type subscriber struct {
	ch chan notification.Notification
}

// Hub keeps one room per user; each open stream of the user is a subscriber of the room.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*subscriber]struct{}
	bufferSize int
}

var _ notification.Hub = (*Hub)(nil) // interface compliance check

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		rooms:      make(map[string]map[*subscriber]struct{}),
		bufferSize: bufferSize,
	}
}

// Subscribe opens a stream for userID. the returned func closes it and must be called once done.
func (h *Hub) Subscribe(userID string) (<-chan notification.Notification, func()) {
	sub := &subscriber{ch: make(chan notification.Notification, h.bufferSize)}

	h.mu.Lock()
	room, ok := h.rooms[userID]
	if !ok {
		room = make(map[*subscriber]struct{})
		h.rooms[userID] = room
	}
	room[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if room, ok := h.rooms[userID]; ok {
				delete(room, sub)
				if len(room) == 0 {
					delete(h.rooms, userID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, unsubscribe
}

// Push never blocks. a recipient with no open stream is not an error: the feed serves them later.
// ErrSubscribersFull is returned when no stream could take the notification.
func (h *Hub) Push(recipientID string, notif notification.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[recipientID]
	if len(room) == 0 {
		return nil
	}
	delivered := 0
	for sub := range room {
		select {
		case sub.ch <- notif:
			delivered++
		default:
		}
	}
	if delivered == 0 {
		return ErrSubscribersFull
	}
	return nil
}

// Subscribers returns the number of open streams of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}
