// Package replay records spent authorization nonces so a signed transfer
// authorization can be admitted at most once.
package replay

import (
	"context"
	"sync"
)

// A Store records spent nonces.  MarkSpent must be atomic: when two requests
// race to spend the same authorization, exactly one observes true.
type Store interface {
	// MarkSpent records the nonce as spent for the given network and
	// reports whether this call was the first to spend it.
	MarkSpent(ctx context.Context, network, nonce string) (bool, error)
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore is the default in-process Store.  It keeps spent nonces for
// the lifetime of the process; use the SQLite store when grants must survive
// a restart.
type MemoryStore struct {
	mu    sync.Mutex
	spent map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spent: make(map[string]struct{}),
	}
}

func (s *MemoryStore) MarkSpent(_ context.Context, network, nonce string) (bool, error) {
	key := network + "/" + nonce

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.spent[key]; ok {
		return false, nil
	}

	s.spent[key] = struct{}{}

	return true, nil
}
