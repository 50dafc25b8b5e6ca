package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
	inmemdb "github.com/classync/classync/storage/database/inmem"
)

func ResetDB(t *testing.T, db *inmemdb.DB) {
	t.Helper()
	db.Reset()
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateServer(t *testing.T, repo space.Repository, owner user.User, name string, memberIDs ...string) space.Server {
	srv, err := repo.CreateServer(context.Background(), space.Server{
		Name:      name,
		Code:      space.NewCode(),
		OwnerID:   owner.ID,
		MemberIDs: append([]string{}, memberIDs...),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createServer() failed: %v", err)
	}
	return srv
}

func CreateTeam(t *testing.T, repo space.Repository, srv space.Server, name string, memberIDs ...string) space.Team {
	team, err := repo.CreateTeam(context.Background(), space.Team{
		ServerID:  srv.ID,
		Name:      name,
		MemberIDs: append([]string{}, memberIDs...),
		CreatedBy: srv.OwnerID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("createTeam() failed: %v", err)
	}
	return team
}

// CreateTask stores an active individual task of srv due in a day; opts adjust it before it is stored.
func CreateTask(t *testing.T, repo task.Repository, srv space.Server, title string, opts ...func(*task.Task)) task.Task {
	now := time.Now().UTC()
	tsk := task.Task{
		ServerID:         srv.ID,
		OwnerID:          srv.OwnerID,
		Title:            title,
		DueDate:          now.Add(24 * time.Hour),
		MaxPoints:        100,
		Priority:         task.PriorityMedium,
		Status:           task.StatusActive,
		AssignmentType:   task.AssignmentIndividual,
		TeamIDs:          []string{},
		StudentIDs:       []string{},
		MaxAttempts:      1,
		AllowedFileTypes: []string{},
		MaxFileSize:      task.DefaultMaxFileSize,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, opt := range opts {
		opt(&tsk)
	}
	tsk, err := repo.CreateTask(context.Background(), tsk)
	if err != nil {
		t.Fatalf("createTask() failed: %v", err)
	}
	return tsk
}
