// Package kv provides the small key-value store the console keeps its
// session state in. Values are plain strings; everything but the bearer
// token is JSON.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound indicates the key holds no value.
var ErrNotFound = errors.New("kv: not found")

// Store is the persistence surface for session state.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
