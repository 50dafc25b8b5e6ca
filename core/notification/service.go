package notification

import (
	"context"

	"github.com/classync/classync/core"
)

const defaultFeedLimit = 50

// Service serves the notification feed of a user.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type FeedQuery struct {
	UnreadOnly bool `query:"unread"`
	Limit      int  `query:"limit" validate:"omitempty,min=1,max=200"`
}

func (svc *Service) List(ctx context.Context, recipientID string, q FeedQuery) ([]Notification, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return svc.repo.ListNotifications(ctx, recipientID, q.UnreadOnly, limit)
}

func (svc *Service) MarkRead(ctx context.Context, recipientID, id string) error {
	cnt, err := svc.repo.MarkRead(ctx, recipientID, id)
	if err != nil {
		return err
	}
	if cnt == 0 {
		return core.NewNotFoundError("notification not found")
	}
	return nil
}

func (svc *Service) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	return svc.repo.MarkRead(ctx, recipientID)
}
