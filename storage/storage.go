// Package storage is the artifact store: blob I/O behind a narrow contract,
// with local-filesystem and S3-compatible backends. Artifact references are
// opaque to every caller; only this package interprets them.
package storage

import (
	"context"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/playletworks/drama-api/common"
	"github.com/playletworks/drama-api/common/config"
)

// Ref is an opaque artifact handle, stable across process restarts:
// local://<path> or s3://<bucket>/<key>.
type Ref string

const (
	schemeLocal = "local://"
	schemeS3    = "s3://"
)

// ArtifactStore is the narrow blob contract. Implementations are safe for
// concurrent use and never interpret contents.
type ArtifactStore interface {
	// Put stores data under key, overwriting any previous blob at the same
	// key, and returns the reference. Idempotent per key.
	Put(ctx context.Context, key string, data []byte, contentType string) (Ref, error)
	// Get returns the blob bytes, failing with NotFound when absent.
	Get(ctx context.Context, ref Ref) ([]byte, error)
	// Delete removes the blob; the bool reports deleted (true) vs not-found.
	Delete(ctx context.Context, ref Ref) (bool, error)
	// Exists reports whether the blob is present.
	Exists(ctx context.Context, ref Ref) (bool, error)
}

// NewFromConfig builds the configured backend.
func NewFromConfig(ctx context.Context) (ArtifactStore, error) {
	switch config.StorageBackend {
	case "local", "":
		return NewLocalStore(config.StorageLocalRoot)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Endpoint: config.StorageS3Endpoint,
			Bucket:   config.StorageS3Bucket,
			Region:   config.StorageS3Region,
			Key:      config.StorageS3Key,
			Secret:   config.StorageS3Secret,
		})
	default:
		return nil, errors.Wrapf(common.ErrInvalidInput, "unknown storage backend %q", config.StorageBackend)
	}
}

// ValidRef reports whether s is a well-formed artifact reference of either
// backend. It says nothing about whether the artifact exists.
func ValidRef(s string) bool {
	switch {
	case strings.HasPrefix(s, schemeLocal):
		return len(s) > len(schemeLocal)
	case strings.HasPrefix(s, schemeS3):
		_, _, err := parseS3Ref(Ref(s))
		return err == nil
	default:
		return false
	}
}

func localRef(key string) Ref {
	return Ref(schemeLocal + key)
}

func s3Ref(bucket, key string) Ref {
	return Ref(schemeS3 + bucket + "/" + key)
}

func parseLocalRef(ref Ref) (string, error) {
	s := string(ref)
	if !strings.HasPrefix(s, schemeLocal) {
		return "", errors.Wrapf(common.ErrInvalidInput, "not a local artifact ref: %s", ref)
	}
	return strings.TrimPrefix(s, schemeLocal), nil
}

func parseS3Ref(ref Ref) (bucket string, key string, err error) {
	s := string(ref)
	if !strings.HasPrefix(s, schemeS3) {
		return "", "", errors.Wrapf(common.ErrInvalidInput, "not an s3 artifact ref: %s", ref)
	}
	rest := strings.TrimPrefix(s, schemeS3)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Wrapf(common.ErrInvalidInput, "malformed s3 artifact ref: %s", ref)
	}
	return bucket, key, nil
}
