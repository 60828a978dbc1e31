// Package storage provides the key/value persistence backends the overlay
// store writes through. The interface mirrors the original storage
// collaborator contract: get returns absent rather than failing for
// missing keys, and malformed values are the caller's problem to recover
// from.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound marks an absent key.
var ErrNotFound = errors.New("storage: key not found")

// Provider is the storage collaborator contract.
type Provider interface {
	// Get returns the stored value, or ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set stores the value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes the key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Ping checks backend reachability.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}
