package config

import (
	"fmt"
	"sort"
	"sync"
)

// Store is a thread-safe in-memory tenant configuration store.
type Store struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
	order   []string
}

// NewStore seeds a store with the given tenants, preserving their order.
func NewStore(tenants []Tenant) *Store {
	s := &Store{tenants: make(map[string]Tenant, len(tenants))}
	for _, t := range tenants {
		s.Put(t)
	}
	return s
}

// Get returns the configuration of a tenant.
func (s *Store) Get(tenantID string) (Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return Tenant{}, fmt.Errorf("tenant %q not found", tenantID)
	}
	return t, nil
}

// Put inserts or replaces a tenant.
func (s *Store) Put(t Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tenants[t.ID]; !exists {
		s.order = append(s.order, t.ID)
	}
	s.tenants[t.ID] = t
}

// TenantIDs returns tenant ids in insertion order.
func (s *Store) TenantIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Active returns at most MaxActiveTenants tenants, in insertion order.
func (s *Store) Active() []Tenant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.order)
	if n > MaxActiveTenants {
		n = MaxActiveTenants
	}
	out := make([]Tenant, 0, n)
	for _, id := range s.order[:n] {
		out = append(out, s.tenants[id])
	}
	return out
}

// Blacklist is a set of symbols that are never traded.
type Blacklist map[string]struct{}

// NewBlacklist builds a Blacklist from a list of symbols.
func NewBlacklist(symbols []string) Blacklist {
	b := make(Blacklist, len(symbols))
	for _, s := range symbols {
		b[s] = struct{}{}
	}
	return b
}

// Contains reports whether symbol is blacklisted.
func (b Blacklist) Contains(symbol string) bool {
	_, ok := b[symbol]
	return ok
}

// Sorted returns the blacklist entries in lexical order.
func (b Blacklist) Sorted() []string {
	out := make([]string, 0, len(b))
	for s := range b {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
