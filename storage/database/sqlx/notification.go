package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/classync/classync/core/notification"
)

type notificationRow struct {
	ID          string    `db:"id"`
	RecipientID string    `db:"recipient_id"`
	Type        string    `db:"type"`
	Title       string    `db:"title"`
	Message     string    `db:"message"`
	TaskID      string    `db:"task_id"`
	ServerID    string    `db:"server_id"`
	IsRead      bool      `db:"is_read"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		Type:        notification.Type(r.Type),
		Title:       r.Title,
		Message:     r.Message,
		TaskID:      r.TaskID,
		ServerID:    r.ServerID,
		IsRead:      r.IsRead,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// SaveNotifications is idempotent: saving a notification again keeps the stored one.
func (repo *notificationRepository) SaveNotifications(ctx context.Context, notifs ...notification.Notification) error {
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, n := range notifs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO notification (id, recipient_id, type, title, message, task_id, server_id, is_read, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO NOTHING`,
				n.ID, n.RecipientID, string(n.Type), n.Title, n.Message, n.TaskID, n.ServerID, n.IsRead, n.CreatedAt.UTC())
			if err != nil {
				return errors.Wrap(err, "inserting notification")
			}
		}
		return nil
	})
}

func (repo *notificationRepository) ListNotifications(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]notification.Notification, error) {
	var w where
	w.add("recipient_id::text = ?", recipientID)
	if unreadOnly {
		w.add("NOT is_read")
	}
	q := `SELECT * FROM notification` + w.String() + ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		q += " LIMIT ?"
		w.args = append(w.args, limit)
	}

	var rows []notificationRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "listing notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, recipientID string, ids ...string) (int, error) {
	var w where
	w.add("recipient_id::text = ?", recipientID)
	if len(ids) > 0 {
		w.add("id::text = ANY(?)", pq.Array(ids))
	} else {
		w.add("NOT is_read")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(`UPDATE notification SET is_read = true`+w.String()), w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "marking notifications read")
}
