package inmemdb

import (
	"context"
	"sort"

	"github.com/classync/classync/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db.notif}
}

// SaveNotifications is idempotent: saving a notification again keeps the stored one.
func (repo *notificationRepository) SaveNotifications(_ context.Context, notifs ...notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, n := range notifs {
		if _, ok := repo.db.table[n.ID]; ok {
			continue
		}
		n := n
		repo.db.table[n.ID] = &n
	}
	return nil
}

func (repo *notificationRepository) ListNotifications(_ context.Context, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		notifs = append(notifs, *n)
	}
	// newest first
	sort.Slice(notifs, func(i, j int) bool {
		if notifs[i].CreatedAt.Equal(notifs[j].CreatedAt) {
			return notifs[i].ID > notifs[j].ID
		}
		return notifs[i].CreatedAt.After(notifs[j].CreatedAt)
	})
	if limit > 0 && len(notifs) > limit {
		notifs = notifs[:limit]
	}
	return notifs, nil
}

// MarkRead marks the notifications of recipientID with the given ids as read and returns how many matched.
// without ids, every unread notification of recipientID is marked and counted.
func (repo *notificationRepository) MarkRead(_ context.Context, recipientID string, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cnt := 0
	mark := func(n *notification.Notification) {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			cnt++
		}
	}
	if len(ids) == 0 {
		for _, n := range repo.db.table {
			mark(n)
		}
		return cnt, nil
	}
	for _, id := range ids {
		if n, ok := repo.db.table[id]; ok && n.RecipientID == recipientID {
			n.IsRead = true
			cnt++
		}
	}
	return cnt, nil
}
