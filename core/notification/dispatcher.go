package notification

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/user"
)

// UserDirectory resolves the recipients of e-mail copies.
type UserDirectory interface {
	Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
}

type DispatcherDeps struct {
	Repo    Repository
	Hub     Hub
	Outbox  Outbox
	Logger  core.Logger
	Now     core.Clock
	Users   UserDirectory     // optional, with MailSvc
	MailSvc core.EmailService // optional: no e-mail copies when nil
}

// Dispatcher stores every notification, pushes it to the recipient's streams and,
// optionally, e-mails a copy. failed deliveries go to the outbox.
type Dispatcher struct {
	repo    Repository
	hub     Hub
	outbox  Outbox
	logger  core.Logger
	now     core.Clock
	users   UserDirectory
	mailSvc core.EmailService
}

var _ Sink = (*Dispatcher)(nil) // interface compliance check

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Hub, "Hub"),
		vala.IsNotNil(deps.Outbox, "Outbox"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Now, "Now"),
	).CheckAndPanic()

	return &Dispatcher{
		repo:    deps.Repo,
		hub:     deps.Hub,
		outbox:  deps.Outbox,
		logger:  deps.Logger,
		now:     deps.Now,
		users:   deps.Users,
		mailSvc: deps.MailSvc,
	}
}

// Publish creates one notification per distinct recipient of evt and delivers it.
func (d *Dispatcher) Publish(ctx context.Context, evt Event) {
	now := d.now().UTC()
	recipients := uniqueIDs(evt.RecipientIDs)
	if len(recipients) == 0 {
		return
	}

	notifs := make([]Notification, 0, len(recipients))
	for _, rid := range recipients {
		notifs = append(notifs, Notification{
			ID:          uuid.New().String(),
			RecipientID: rid,
			Type:        evt.Type,
			Title:       evt.Title,
			Message:     evt.Message,
			TaskID:      evt.TaskID,
			ServerID:    evt.ServerID,
			CreatedAt:   now,
		})
	}

	for _, n := range notifs {
		if failed, err := d.Deliver(ctx, n, allChannels); err != nil {
			d.logger.Warn(fmt.Sprintf("notification %s: delivery failed on %v, queuing", n.ID, failed), err)
			d.enqueue(ctx, OutboxEntry{
				ID:            n.ID,
				Notification:  n,
				Channels:      failed,
				Attempts:      1,
				NextAttemptAt: now,
				LastError:     err.Error(),
			})
		}
	}

	d.sendEmails(ctx, evt)
}

// Deliver delivers n on the given channels and returns those that failed along with the last error.
// the realtime push is only attempted once the notification is stored.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification, channels []Channel) ([]Channel, error) {
	var (
		failed  []Channel
		lastErr error
	)
	for _, ch := range channels {
		if ch == ChannelRealtime && containsChannel(failed, ChannelFeed) {
			failed = append(failed, ch)
			continue
		}
		if err := d.deliverOn(ctx, n, ch); err != nil {
			failed = append(failed, ch)
			lastErr = err
		}
	}
	return failed, lastErr
}

func (d *Dispatcher) deliverOn(ctx context.Context, n Notification, ch Channel) error {
	switch ch {
	case ChannelFeed:
		return errors.Wrap(d.repo.SaveNotifications(ctx, n), "saving notification")
	case ChannelRealtime:
		return errors.Wrap(d.hub.Push(n.RecipientID, n), "pushing notification")
	default:
		return errors.Errorf("unknown channel %q", ch)
	}
}

func (d *Dispatcher) enqueue(ctx context.Context, entry OutboxEntry) {
	if err := d.outbox.Enqueue(ctx, entry); err != nil {
		d.logger.Error(fmt.Sprintf("notification %s: could not be queued, dropping", entry.ID), err)
	}
}

func (d *Dispatcher) sendEmails(ctx context.Context, evt Event) {
	if d.mailSvc == nil || d.users == nil {
		return
	}
	users, err := d.users.Query(ctx, &user.QueryFilter{IDs: evt.RecipientIDs}, nil)
	if err != nil {
		d.logger.Error("notification: finding e-mail recipients", err)
		return
	}

	link := ""
	if evt.TaskID != "" {
		link = "/tasks/" + evt.TaskID
	}
	msgs := make([]*core.EmailMessage, 0, len(users))
	for _, usr := range users {
		if usr.Email == "" || !usr.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      evt.Title,
			TemplateName: "notification",
			TemplateData: map[string]string{
				"Name":    usr.Name,
				"Title":   evt.Title,
				"Message": evt.Message,
				"Link":    link,
			},
		})
	}
	if len(msgs) > 0 {
		d.mailSvc.SendMessages(msgs...)
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func containsChannel(chs []Channel, ch Channel) bool {
	for _, c := range chs {
		if c == ch {
			return true
		}
	}
	return false
}
