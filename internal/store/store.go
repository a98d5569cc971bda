// Package store provides the revision-guarded snapshot store.
//
// The store is the only mutable shared resource in the system. All writes
// go through Put with an expected revision token, so concurrent writers
// cannot silently overwrite each other; a blind overwrite path does not
// exist. The backend is swappable (object store, database row, in-memory)
// without touching any decision logic.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound marks a key with no stored object.
	ErrNotFound = errors.New("object not found")
	// ErrConflict marks a conditional write whose expected revision no
	// longer matches. Callers re-read and retry.
	ErrConflict = errors.New("revision conflict")
)

// Object is a stored document plus its revision token.
type Object struct {
	Data     []byte
	Revision string
}

// Store is the narrow persistence capability consumed by the ingest path.
type Store interface {
	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) (Object, error)
	// Put writes data under key and returns the new revision token. An
	// empty expectedRevision means the key must not exist yet; otherwise
	// the stored revision must match or Put fails with ErrConflict.
	Put(ctx context.Context, key string, data []byte, expectedRevision string) (string, error)
}

// Pinger is implemented by backends that can report connection health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CurrentKey addresses the always-overwritten current snapshot of a
// retailer.
func CurrentKey(retailer string) string {
	return "current/" + retailer
}

// ArchiveKey addresses one immutable archive snapshot. Keys carry a
// nanosecond timestamp so archive writes never collide.
func ArchiveKey(retailer string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("archive/%s/%04d/%02d/%02d/%s",
		retailer, t.Year(), int(t.Month()), t.Day(), t.Format("150405.000000000"))
}
