// Package outbox keeps the notifications waiting for redelivery in a bbolt file.
package outbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"github.com/classync/classync/core/notification"
)

var entriesBucket = []byte("Entries")

type Store struct {
	db *bbolt.DB
}

var _ notification.Outbox = (*Store)(nil) // interface compliance check

// Open opens (or creates) the outbox file at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "creating outbox directory")
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening outbox")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating outbox bucket")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(entry notification.OutboxEntry) error {
	if entry.ID == "" {
		return errors.New("outbox entry without ID")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encoding outbox entry")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(entry.ID), data)
	})
}

// Enqueue adds entry, replacing any entry with the same ID.
func (s *Store) Enqueue(_ context.Context, entry notification.OutboxEntry) error {
	return errors.Wrap(s.put(entry), "enqueuing outbox entry")
}

// Due returns up to limit entries whose NextAttemptAt is not after now, oldest first.
func (s *Store) Due(_ context.Context, now time.Time, limit int) ([]notification.OutboxEntry, error) {
	var due []notification.OutboxEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(_, v []byte) error {
			var entry notification.OutboxEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return errors.Wrap(err, "decoding outbox entry")
			}
			if !entry.NextAttemptAt.After(now) {
				due = append(due, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing due entries")
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].NextAttemptAt.Equal(due[j].NextAttemptAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Reschedule stores the new state of an existing entry.
func (s *Store) Reschedule(_ context.Context, entry notification.OutboxEntry) error {
	return errors.Wrap(s.put(entry), "rescheduling outbox entry")
}

func (s *Store) Remove(_ context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).Delete([]byte(id))
	})
	return errors.Wrap(err, "removing outbox entry")
}

// Len returns the number of entries waiting.
func (s *Store) Len() (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(entriesBucket).Stats().KeyN
		return nil
	})
	return n, err
}
