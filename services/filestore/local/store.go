// Package localstore keeps submitted files on the local disk.
package localstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/classync/classync/core/task"
)

type Store struct {
	root    string
	baseURL string
}

var _ task.FileStore = (*Store)(nil) // interface compliance check

// New returns a Store writing under root. baseURL, if set, prefixes the URL of stored files.
func New(root, baseURL string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrap(err, "creating file store root")
	}
	return &Store{root: root, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// key is <task>/<student>/<uuid><ext>; the original name is kept in the FileRef only.
func key(meta task.FileMeta) string {
	return filepath.ToSlash(filepath.Join(
		safe(meta.TaskID), safe(meta.StudentID), uuid.New().String()+strings.ToLower(filepath.Ext(filepath.Base(meta.Name))),
	))
}

func safe(segment string) string {
	segment = strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(segment)
	if segment == "" {
		return "_"
	}
	return segment
}

func (s *Store) path(ref string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(ref))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", errors.Errorf("invalid file reference %q", ref)
	}
	return p, nil
}

// Store writes content and returns its reference. at most meta.Size bytes are kept when a size is declared.
func (s *Store) Store(ctx context.Context, content io.Reader, meta task.FileMeta) (task.FileRef, error) {
	if err := ctx.Err(); err != nil {
		return task.FileRef{}, err
	}
	ref := key(meta)
	p, err := s.path(ref)
	if err != nil {
		return task.FileRef{}, err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return task.FileRef{}, errors.Wrap(err, "creating file directory")
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return task.FileRef{}, errors.Wrap(err, "creating file")
	}
	if meta.Size > 0 {
		content = io.LimitReader(content, meta.Size)
	}
	n, err := io.Copy(f, content)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(p)
		return task.FileRef{}, errors.Wrap(err, "writing file")
	}

	fileRef := task.FileRef{
		ID:          ref,
		Name:        meta.Name,
		ContentType: meta.ContentType,
		Size:        n,
	}
	if s.baseURL != "" {
		fileRef.URL = s.baseURL + "/" + ref
	}
	return fileRef, nil
}

// Open returns the content of a stored file.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	return f, errors.Wrap(err, "opening file")
}

// Delete removes a stored file; deleting a missing file is not an error.
func (s *Store) Delete(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}
