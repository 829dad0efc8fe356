// Package featurestore keeps the serialized feature frames a calibration
// run was built on, addressed by their content hash.
package featurestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrNotFound = errors.New("featurestore: payload not found")

// Store saves payloads and returns the storage path to record alongside
// the hash.
type Store interface {
	Put(ctx context.Context, hash string, data []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Close() error
}

// Hash is the hex SHA-256 of a payload.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
