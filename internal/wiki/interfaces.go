package wiki

import (
	"context"
	"io"
	"time"
)

// Store persists pages in a relational table.
type Store interface {
	Init(ctx context.Context) error
	ListPageNames(ctx context.Context) ([]string, error)
	GetPage(ctx context.Context, name string) (Page, error)
	CreatePage(ctx context.Context, name, content string) (int64, error)
	SavePage(ctx context.Context, id int64, content string) error
	DeletePage(ctx context.Context, id int64) error
	AllPages(ctx context.Context) ([]Page, error)
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore writes snapshots and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes page notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for snapshot integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces snapshot and event IDs.
type IDGenerator interface {
	NewID() (string, error)
}
