// Package blob stores opaque files such as boarding contracts.
//
// A Store is one bucket. Three drivers exist: fs (local directory, the
// default), memory (tests) and s3 (AWS S3 or any S3-compatible service).
// Put overwrites an existing key, so re-uploading a contract replaces it.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverMemory     Driver = "memory"
	DriverS3         Driver = "s3"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("blob: not found")

type PutOptions struct {
	ContentType string
}

// Info describes a stored blob.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	// Get returns the blob and its metadata; the caller closes the reader.
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	Driver() Driver
}

// checkKey rejects keys that could escape a directory root.
func checkKey(key string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("blob: empty key")
	case strings.Contains(key, ".."):
		return fmt.Errorf("blob: key %q contains '..'", key)
	case strings.HasPrefix(key, "/"), strings.Contains(key, `\`):
		return fmt.Errorf("blob: invalid key %q", key)
	}
	return nil
}

// Config selects and configures a driver.
type Config struct {
	Driver string
	// Bucket is the S3 bucket, or a subdirectory of Root for fs.
	Bucket string
	Root   string

	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// Open builds the Store cfg describes. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(cfg.Driver) {
	case DriverFilesystem, "":
		return NewFilesystem(joinRoot(cfg.Root, cfg.Bucket))
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg)
	default:
		return nil, fmt.Errorf("blob: unknown driver %q", cfg.Driver)
	}
}

func joinRoot(root, bucket string) string {
	if root == "" {
		root = "./blobdata"
	}
	if bucket == "" {
		return root
	}
	return strings.TrimRight(root, "/") + "/" + bucket
}
