// Package contentstore persists opaque payloads (persona documents, product
// metadata) and hands back content ids. The marketplace core only ever stores
// and compares the ids.
package contentstore

import (
	"context"
	"errors"

	"vitrine/core/types"
)

var (
	// ErrNotFound is returned when no payload exists for a content id.
	ErrNotFound = errors.New("contentstore: content not found")
	// ErrEmptyPayload is returned when storing a zero-length payload.
	ErrEmptyPayload = errors.New("contentstore: empty payload")
	// ErrInvalidID is returned for blank content ids.
	ErrInvalidID = errors.New("contentstore: invalid content id")
)

// Store is the external content store contract.
type Store interface {
	Store(ctx context.Context, data []byte) (types.ContentID, error)
	Fetch(ctx context.Context, id types.ContentID) ([]byte, error)
}
