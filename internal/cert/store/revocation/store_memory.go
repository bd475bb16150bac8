package revocation

import (
	"context"
	"math/big"
	"sort"
	"sync"
)

// InMemoryLedger keeps revoked serials in process memory.
type InMemoryLedger struct {
	mu      sync.RWMutex
	revoked map[string]struct{}
}

// NewMemory constructs an empty in-memory ledger.
func NewMemory() *InMemoryLedger {
	return &InMemoryLedger{revoked: make(map[string]struct{})}
}

func (l *InMemoryLedger) Record(_ context.Context, serial *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[serial.String()] = struct{}{}
	return nil
}

func (l *InMemoryLedger) IsRevoked(_ context.Context, serial *big.Int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.revoked[serial.String()]
	return ok, nil
}

func (l *InMemoryLedger) ListRevoked(_ context.Context) ([]*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*big.Int, 0, len(l.revoked))
	for s := range l.revoked {
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out, nil
}
