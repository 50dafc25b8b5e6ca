package notification_test

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/services/logger"
	"github.com/classync/classync/services/realtime"
	"github.com/classync/classync/storage/database/inmem"
	"github.com/classync/classync/storage/outbox"
	"github.com/classync/classync/tests"
)

var errDown = errors.New("store is down")

// flakyRepo fails every call while down is set.
type flakyRepo struct {
	notification.Repository
	mu   sync.Mutex
	down bool
}

func (r *flakyRepo) setDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.down = down
}

func (r *flakyRepo) SaveNotifications(ctx context.Context, notifs ...notification.Notification) error {
	r.mu.Lock()
	down := r.down
	r.mu.Unlock()
	if down {
		return errDown
	}
	return r.Repository.SaveNotifications(ctx, notifs...)
}

// flakyHub fails every push while down is set.
type flakyHub struct {
	*realtime.Hub
	down bool
}

func (h *flakyHub) Push(recipientID string, n notification.Notification) error {
	if h.down {
		return realtime.ErrSubscribersFull
	}
	return h.Hub.Push(recipientID, n)
}

type directory struct {
	user.Repository
}

func (d directory) Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	return d.QueryUsers(ctx, filter, ordering)
}

type mailbox struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *mailbox) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type fixture struct {
	usrRepo    user.Repository
	repo       *flakyRepo
	hub        *flakyHub
	box        *outbox.Store
	dispatcher *notification.Dispatcher
	now        time.Time
}

func setup(t *testing.T, withMail *mailbox) *fixture {
	db := inmemdb.NewDB()
	box, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = box.Close() })

	f := &fixture{
		usrRepo: inmemdb.NewUserRepository(db),
		repo:    &flakyRepo{Repository: inmemdb.NewNotificationRepository(db)},
		hub:     &flakyHub{Hub: realtime.NewHub(4)},
		box:     box,
		now:     time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
	deps := notification.DispatcherDeps{
		Repo:   f.repo,
		Hub:    f.hub,
		Outbox: box,
		Logger: logsvc.NewTestLogger(io.Discard),
		Now:    func() time.Time { return f.now },
	}
	if withMail != nil {
		deps.Users = directory{f.usrRepo}
		deps.MailSvc = withMail
	}
	f.dispatcher = notification.NewDispatcher(deps)
	return f
}

func (f *fixture) stored(t *testing.T, recipientID string) []notification.Notification {
	notifs, err := f.repo.ListNotifications(context.Background(), recipientID, false, 0)
	require.NoError(t, err)
	return notifs
}

func (f *fixture) queued(t *testing.T) []notification.OutboxEntry {
	entries, err := f.box.Due(context.Background(), f.now.Add(time.Hour), 100)
	require.NoError(t, err)
	return entries
}

func gradedEvent(recipients ...string) notification.Event {
	return notification.Event{
		Type:         notification.TypeSubmissionGraded,
		RecipientIDs: recipients,
		Title:        "Submission graded: Essay",
		Message:      "Attempt 1 of \"Essay\" was graded 18/20.",
		TaskID:       "t1",
		ServerID:     "s1",
	}
}

func TestDispatcher_Publish(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	stream, unsubscribe := f.hub.Subscribe("u1")
	defer unsubscribe()

	f.dispatcher.Publish(ctx, gradedEvent("u1", "u2", "u1", ""))

	u1 := f.stored(t, "u1")
	require.Len(t, u1, 1, "one notification per distinct recipient")
	assert.Equal(t, notification.TypeSubmissionGraded, u1[0].Type)
	assert.Equal(t, "t1", u1[0].TaskID)
	assert.Equal(t, "s1", u1[0].ServerID)
	assert.Equal(t, f.now, u1[0].CreatedAt)
	assert.False(t, u1[0].IsRead)
	assert.Len(t, f.stored(t, "u2"), 1)

	select {
	case n := <-stream:
		assert.Equal(t, u1[0].ID, n.ID)
	default:
		t.Fatal("u1 received nothing")
	}
	assert.Empty(t, f.queued(t))

	// no recipients, nothing to do
	f.dispatcher.Publish(ctx, gradedEvent())
	assert.Len(t, f.stored(t, "u1"), 1)
}

func TestDispatcher_PublishFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("feed down", func(t *testing.T) {
		f := setup(t, nil)
		stream, unsubscribe := f.hub.Subscribe("u1")
		defer unsubscribe()

		f.repo.setDown(true)
		f.dispatcher.Publish(ctx, gradedEvent("u1"))

		select {
		case n := <-stream:
			t.Fatalf("pushed %s before it was stored", n.ID)
		default:
		}
		entries := f.queued(t)
		require.Len(t, entries, 1)
		assert.Equal(t, []notification.Channel{notification.ChannelFeed, notification.ChannelRealtime}, entries[0].Channels)
		assert.Equal(t, 1, entries[0].Attempts)
		assert.Contains(t, entries[0].LastError, errDown.Error())
		assert.Equal(t, "u1", entries[0].Notification.RecipientID)
	})

	t.Run("realtime down", func(t *testing.T) {
		f := setup(t, nil)
		f.hub.down = true
		f.dispatcher.Publish(ctx, gradedEvent("u1"))

		assert.Len(t, f.stored(t, "u1"), 1)
		entries := f.queued(t)
		require.Len(t, entries, 1)
		assert.Equal(t, []notification.Channel{notification.ChannelRealtime}, entries[0].Channels)
	})

	t.Run("offline recipient", func(t *testing.T) {
		f := setup(t, nil)
		f.dispatcher.Publish(ctx, gradedEvent("u1"))
		assert.Empty(t, f.queued(t), "pushing to nobody is not a failure")
	})
}

func TestDispatcher_Emails(t *testing.T) {
	box := new(mailbox)
	f := setup(t, box)

	active := testutil.CreateUser(t, f.usrRepo, "Alice", "alice", "alice@test.cd", "", []string{user.RoleStudent}, true)
	inactive := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleStudent}, false)
	noEmail := testutil.CreateUser(t, f.usrRepo, "Carl", "carl", "", "", []string{user.RoleStudent}, true)

	f.dispatcher.Publish(context.Background(), gradedEvent(active.ID, inactive.ID, noEmail.ID))

	require.Len(t, box.sent, 1)
	msg := box.sent[0]
	require.Len(t, msg.To, 1)
	assert.Equal(t, "alice@test.cd", msg.To[0].Address)
	assert.Equal(t, "notification", msg.TemplateName)
	assert.Equal(t, "Submission graded: Essay", msg.Subject)
	data, ok := msg.TemplateData.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "/tasks/t1", data["Link"])

	// every recipient still gets the in-app notification
	assert.Len(t, f.stored(t, inactive.ID), 1)
}
