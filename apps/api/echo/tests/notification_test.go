package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classync/classync/apps/api/echo"
	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/user"
	"github.com/classync/classync/tests"
)

func createNotifications(t *testing.T, recipientID string, n int, base time.Time) []notification.Notification {
	notifs := make([]notification.Notification, 0, n)
	for i := 0; i < n; i++ {
		notifs = append(notifs, notification.Notification{
			ID:          "n" + string(rune('a'+i)) + "-" + recipientID,
			RecipientID: recipientID,
			Type:        notification.TypeTaskPublished,
			Title:       "New task",
			Message:     "Homework is due",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	require.NoError(t, notifRepo.SaveNotifications(context.Background(), notifs...))
	return notifs
}

func Test_notificationApi_feed(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, usrRepo, "Zero", "zero", "zero@test.cd", "", []string{user.RoleStudent}, true)
	base := time.Now().UTC().Truncate(time.Second)
	notifs := createNotifications(t, student.ID, 3, base)
	others := createNotifications(t, other.ID, 1, base)
	token := getToken(t, student)

	read := func(n notification.Notification) notification.Notification {
		n.IsRead = true
		return n
	}

	runTests(t, []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/notifications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "newest first", method: http.MethodGet, path: "/v1/notifications", token: token, ordered: true,
			wantData: marchallList(t, notifs[2], notifs[1], notifs[0]),
		},
		{name: "limit", method: http.MethodGet, path: "/v1/notifications?limit=1", token: token, wantData: marchallList(t, notifs[2])},
		{name: "invalid limit", method: http.MethodGet, path: "/v1/notifications?limit=1000", token: token, wantCode: http.StatusBadRequest},
		{name: "not the recipient", method: http.MethodPost, path: "/v1/notifications/" + others[0].ID + "/read", token: token, wantCode: http.StatusNotFound},
		{name: "unknown", method: http.MethodPost, path: "/v1/notifications/lol/read", token: token, wantCode: http.StatusNotFound},
		{name: "mark read", method: http.MethodPost, path: "/v1/notifications/" + notifs[1].ID + "/read", token: token, wantCode: http.StatusNoContent},
		{
			name: "unread only", method: http.MethodGet, path: "/v1/notifications?unread=true", token: token, ordered: true,
			wantData: marchallList(t, notifs[2], notifs[0]),
		},
		{name: "mark all read", method: http.MethodPost, path: "/v1/notifications/read-all", token: token, wantData: marchallObj(t, echoapi.MarkReadResponse{Count: 2})},
		{name: "nothing unread", method: http.MethodGet, path: "/v1/notifications?unread=true", token: token, wantData: marchallList(t)},
		{
			name: "all read", method: http.MethodGet, path: "/v1/notifications", token: token, ordered: true,
			wantData: marchallList(t, read(notifs[2]), read(notifs[1]), read(notifs[0])),
		},
	})

	// the other recipient is untouched
	got, err := notifRepo.ListNotifications(context.Background(), other.ID, true, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func Test_notificationApi_stream(t *testing.T) {
	resetDB(t)

	student := testutil.CreateUser(t, usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	srv := httptest.NewServer(app)
	defer srv.Close()

	t.Run("token required", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v1/notifications/stream")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("streams notifications", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/notifications/stream?token="+getToken(t, student), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		require.Eventually(t, func() bool { return hub.Subscribers(student.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

		dispatcher.Publish(ctx, notification.Event{
			Type:         notification.TypeSubmissionGraded,
			RecipientIDs: []string{student.ID},
			Title:        "Submission graded",
			Message:      "Attempt 1 was graded 18/20.",
			TaskID:       "task1",
		})

		var event, data string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
			if line == "" && data != "" {
				break
			}
		}
		require.NotEmpty(t, data, "no event received")
		assert.Equal(t, string(notification.TypeSubmissionGraded), event)

		var n notification.Notification
		require.NoError(t, json.Unmarshal([]byte(data), &n))
		assert.Equal(t, student.ID, n.RecipientID)
		assert.Equal(t, "task1", n.TaskID)

		// also stored in the feed
		stored, err := notifRepo.ListNotifications(context.Background(), student.ID, false, 0)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, n.ID, stored[0].ID)

		cancel()
		assert.Eventually(t, func() bool { return hub.Subscribers(student.ID) == 0 }, 2*time.Second, 10*time.Millisecond)
	})
}
