// Package cas defines the content-addressed store abstraction the SMT
// engine (spec §4.B) persists through: get(hash) -> bytes, insert(bytes)
// derives the hash. Concrete backends (memory for tests, leveldb for
// production) live in subpackages and are selected by URL scheme via
// NewStore, mirroring the teacher's stores/blob factory.
package cas

import (
	"context"

	"github.com/themelio-labs/themelio-core/crypto"
)

// Store is a content-addressed byte store. Most callers use Insert, which
// derives the address from the value itself (crypto.Plain(data)), so it is
// idempotent and Get(Insert(x)) == x always holds. The SMT engine (§4.B)
// addresses its nodes by a domain-keyed BLAKE3 hash instead of the plain
// one, so it needs Put to store a value under an address it already
// computed; the store trusts the caller that the address matches the
// value under whatever hash scheme that caller uses.
type Store interface {
	// Get returns the bytes previously stored under hash, or a
	// *errors.Error with Code == errors.ErrNotFound if absent.
	Get(ctx context.Context, hash crypto.Hash) ([]byte, error)

	// Insert stores data under its plain content address and returns it.
	Insert(ctx context.Context, data []byte) (crypto.Hash, error)

	// Put stores data under a caller-supplied address.
	Put(ctx context.Context, hash crypto.Hash, data []byte) error

	// Exists reports whether hash is present without fetching its value.
	Exists(ctx context.Context, hash crypto.Hash) (bool, error)

	Health(ctx context.Context) (int, string, error)
	Close(ctx context.Context) error
}
