// Package memory implements an in-process cas.Store, grounded on the
// teacher's stores/blob/memory backend, used by tests and by ephemeral
// auditor nodes that never persist state across restarts.
package memory

import (
	"context"
	"sync"

	"github.com/themelio-labs/themelio-core/crypto"
	"github.com/themelio-labs/themelio-core/errors"
)

type Memory struct {
	mu   sync.RWMutex
	data map[crypto.Hash][]byte
}

func New() *Memory {
	return &Memory{data: make(map[crypto.Hash][]byte)}
}

func (m *Memory) Get(_ context.Context, hash crypto.Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[hash]
	if !ok {
		return nil, errors.New(errors.ErrNotFound, "cas: hash %s not found", hash)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, data []byte) (crypto.Hash, error) {
	hash := crypto.Plain(data)
	if err := m.Put(ctx, hash, data); err != nil {
		return hash, err
	}
	return hash, nil
}

func (m *Memory) Put(_ context.Context, hash crypto.Hash, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[hash]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		m.data[hash] = stored
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, hash crypto.Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[hash]
	return ok, nil
}

func (m *Memory) Health(_ context.Context) (int, string, error) {
	return 200, "memory cas store", nil
}

func (m *Memory) Close(_ context.Context) error {
	return nil
}
