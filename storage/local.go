package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/common"
)

// LocalStore keeps artifacts under a root directory. Keys map to relative
// paths; traversal outside the root is rejected.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve storage root %s", root)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create storage root %s", abs)
	}
	return &LocalStore{root: abs}, nil
}

func (s *LocalStore) pathForKey(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", errors.Wrapf(common.ErrInvalidInput, "invalid artifact key %q", key)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) (Ref, error) {
	path, err := s.pathForKey(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, "create artifact dir for %s", key)
	}
	// Write-then-rename keeps concurrent readers from observing partial blobs.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write artifact %s", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrapf(err, "finalize artifact %s", key)
	}
	return localRef(filepath.ToSlash(filepath.Clean(key))), nil
}

func (s *LocalStore) Get(_ context.Context, ref Ref) ([]byte, error) {
	key, err := parseLocalRef(ref)
	if err != nil {
		return nil, err
	}
	path, err := s.pathForKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(common.ErrNotFound, "artifact %s", ref)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read artifact %s", ref)
	}
	return data, nil
}

func (s *LocalStore) Delete(_ context.Context, ref Ref) (bool, error) {
	key, err := parseLocalRef(ref)
	if err != nil {
		return false, err
	}
	path, err := s.pathForKey(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "delete artifact %s", ref)
	}
	return true, nil
}

func (s *LocalStore) Exists(_ context.Context, ref Ref) (bool, error) {
	key, err := parseLocalRef(ref)
	if err != nil {
		return false, err
	}
	path, err := s.pathForKey(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat artifact %s", ref)
	}
	return true, nil
}
