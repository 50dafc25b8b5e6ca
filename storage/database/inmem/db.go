// Package inmemdb keeps every repository in memory. it backs the tests and the "memory" database engine.
package inmemdb

import (
	"sync"

	"github.com/classync/classync/core/notification"
	"github.com/classync/classync/core/space"
	"github.com/classync/classync/core/task"
	"github.com/classync/classync/core/user"
)

type (
	DB struct {
		user  *userTable
		space *spaceTable
		task  *taskTable
		notif *notificationTable
	}

	userTable struct {
		mutex sync.RWMutex
		table map[string]*user.User
	}

	spaceTable struct {
		mutex   sync.RWMutex
		servers map[string]*space.Server
		teams   map[string]*space.Team
	}

	// tasks and submissions share a lock: appending a submission reads both.
	taskTable struct {
		mutex       sync.RWMutex
		tasks       map[string]*task.Task
		submissions map[string]*task.Submission
	}

	notificationTable struct {
		mutex sync.RWMutex
		table map[string]*notification.Notification
	}
)

func NewDB() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		space: &spaceTable{
			servers: make(map[string]*space.Server),
			teams:   make(map[string]*space.Team),
		},
		task: &taskTable{
			tasks:       make(map[string]*task.Task),
			submissions: make(map[string]*task.Submission),
		},
		notif: &notificationTable{table: make(map[string]*notification.Notification)},
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := NewDB()
	db.user.mutex.Lock()
	db.user.table = fresh.user.table
	db.user.mutex.Unlock()

	db.space.mutex.Lock()
	db.space.servers, db.space.teams = fresh.space.servers, fresh.space.teams
	db.space.mutex.Unlock()

	db.task.mutex.Lock()
	db.task.tasks, db.task.submissions = fresh.task.tasks, fresh.task.submissions
	db.task.mutex.Unlock()

	db.notif.mutex.Lock()
	db.notif.table = fresh.notif.table
	db.notif.mutex.Unlock()
}

func copyStrings(ss []string) []string {
	c := make([]string, len(ss))
	copy(c, ss)
	return c
}
