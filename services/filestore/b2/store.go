// Package b2store keeps submitted files in a Backblaze B2 bucket.
package b2store

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kurin/blazer/b2"
	"github.com/pkg/errors"

	"github.com/classync/classync/core"
	"github.com/classync/classync/core/task"
)

type Store struct {
	client *b2.Client
	bucket *b2.Bucket
}

var _ task.FileStore = (*Store)(nil) // interface compliance check

// New connects to B2 and opens the bucket, retrying with policy.
func New(ctx context.Context, accountID, appKey, bucketName string, policy core.RetryPolicy) (*Store, error) {
	var (
		client *b2.Client
		bucket *b2.Bucket
	)
	err := core.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		if client == nil {
			if client, err = b2.NewClient(ctx, accountID, appKey); err != nil {
				return errors.Wrap(err, "creating b2 client")
			}
		}
		bucket, err = client.Bucket(ctx, bucketName)
		return errors.Wrap(err, "getting bucket")
	})
	if err != nil {
		return nil, err
	}
	return &Store{client: client, bucket: bucket}, nil
}

func objectKey(meta task.FileMeta) string {
	ext := strings.ToLower(path.Ext(path.Base(meta.Name)))
	return path.Join("submissions", meta.TaskID, meta.StudentID, uuid.New().String()+ext)
}

func (s *Store) Store(ctx context.Context, content io.Reader, meta task.FileMeta) (task.FileRef, error) {
	key := objectKey(meta)
	w := s.bucket.Object(key).NewWriter(ctx, b2.WithAttrsOption(&b2.Attrs{ContentType: meta.ContentType}))

	if meta.Size > 0 {
		content = io.LimitReader(content, meta.Size)
	}
	n, err := io.Copy(w, content)
	if cErr := w.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		return task.FileRef{}, errors.Wrap(err, "writing object")
	}

	return task.FileRef{
		ID:          key,
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        n,
		URL:         fmt.Sprintf("%s/file/%s/%s", s.bucket.BaseURL(), s.bucket.Name(), key),
	}, nil
}

// Delete removes an object; deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := s.bucket.Object(ref).Delete(ctx); err != nil && !b2.IsNotExist(err) {
		return errors.Wrap(err, "deleting object")
	}
	return nil
}
