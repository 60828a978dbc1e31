// Package util holds tiny helpers with no domain knowledge.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random 128-bit hex identifier, prefixed like
// "entry_9f3a..." when prefix is non-empty. Catalog entries get one of
// these when the caller supplies no id.
func NewID(prefix string) string {
	var raw [16]byte
	_, _ = rand.Read(raw[:])
	id := hex.EncodeToString(raw[:])
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
