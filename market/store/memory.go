// Package store provides an in-memory market.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/pointsmarket/market"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements market.TxStore entirely in memory. WithTx is simulated
// with a snapshot and a rollback on error, so the atomicity contract of the
// sqlite store holds here too.
type Memory struct {
	mu            sync.RWMutex
	users         map[market.UserID]market.User
	products      map[market.ProductID]market.Product
	notifications []market.Notification
	entries       []market.LedgerEntry
	idempotency   map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[market.UserID]market.User),
		products:    make(map[market.ProductID]market.Product),
		idempotency: make(map[string]bool),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id market.UserID) (*market.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id), nil
}

func (m *Memory) getUserLocked(id market.UserID) *market.User {
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	cp := u
	return &cp
}

func (m *Memory) SaveUser(_ context.Context, u *market.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUserLocked(u)
}

func (m *Memory) saveUserLocked(u *market.User) error {
	if cur, ok := m.users[u.ID]; ok && cur.Version != u.Version {
		return market.ErrConcurrencyConflict
	}
	u.Version++
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]market.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked(false), nil
}

func (m *Memory) ListActiveUsers(_ context.Context) ([]market.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listUsersLocked(true), nil
}

func (m *Memory) listUsersLocked(activeOnly bool) []market.User {
	var users []market.User
	for _, u := range m.users {
		if activeOnly && !u.Active {
			continue
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].LastName != users[j].LastName {
			return users[i].LastName < users[j].LastName
		}
		if users[i].FirstName != users[j].FirstName {
			return users[i].FirstName < users[j].FirstName
		}
		return users[i].ID < users[j].ID
	})
	return users
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (m *Memory) GetProduct(_ context.Context, id market.ProductID) (*market.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (m *Memory) SaveProduct(_ context.Context, p *market.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = *p
	return nil
}

func (m *Memory) DeleteProduct(_ context.Context, id market.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
	return nil
}

func (m *Memory) ListProducts(_ context.Context) ([]market.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var products []market.Product
	for _, p := range m.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Name != products[j].Name {
			return products[i].Name < products[j].Name
		}
		return products[i].ID < products[j].ID
	})
	return products, nil
}

// =============================================================================
// NOTIFICATIONS (append-only)
// =============================================================================

func (m *Memory) AppendNotification(_ context.Context, n market.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, limit int) ([]market.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]market.Notification, len(m.notifications))
	copy(result, m.notifications)

	// Newest first, ties on CreatedAt broken by id descending.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

func (m *Memory) AppendEntry(_ context.Context, e market.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEntryLocked(e)
}

func (m *Memory) appendEntryLocked(e market.LedgerEntry) error {
	if e.IdempotencyKey != "" {
		if m.idempotency[e.IdempotencyKey] {
			return market.ErrDuplicateEntry
		}
		m.idempotency[e.IdempotencyKey] = true
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) EntryExists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Memory) EntriesForUser(_ context.Context, id market.UserID) ([]market.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []market.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == id {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a view of this store. On error the pre-tx
// snapshot is restored, so partial writes are never observable.
func (m *Memory) WithTx(_ context.Context, fn func(market.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()

	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	users         map[market.UserID]market.User
	products      map[market.ProductID]market.Product
	notifications []market.Notification
	entries       []market.LedgerEntry
	idempotency   map[string]bool
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		users:       make(map[market.UserID]market.User, len(m.users)),
		products:    make(map[market.ProductID]market.Product, len(m.products)),
		idempotency: make(map[string]bool, len(m.idempotency)),
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	s.notifications = append([]market.Notification{}, m.notifications...)
	s.entries = append([]market.LedgerEntry{}, m.entries...)
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.users = s.users
	m.products = s.products
	m.notifications = s.notifications
	m.entries = s.entries
	m.idempotency = s.idempotency
}

// txView gives the WithTx callback store access without re-acquiring the
// mutex the transaction already holds.
type txView struct {
	parent *Memory
}

func (tv *txView) GetUser(_ context.Context, id market.UserID) (*market.User, error) {
	return tv.parent.getUserLocked(id), nil
}

func (tv *txView) SaveUser(_ context.Context, u *market.User) error {
	return tv.parent.saveUserLocked(u)
}

func (tv *txView) ListUsers(_ context.Context) ([]market.User, error) {
	return tv.parent.listUsersLocked(false), nil
}

func (tv *txView) ListActiveUsers(_ context.Context) ([]market.User, error) {
	return tv.parent.listUsersLocked(true), nil
}

func (tv *txView) GetProduct(_ context.Context, id market.ProductID) (*market.Product, error) {
	p, ok := tv.parent.products[id]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (tv *txView) SaveProduct(_ context.Context, p *market.Product) error {
	tv.parent.products[p.ID] = *p
	return nil
}

func (tv *txView) DeleteProduct(_ context.Context, id market.ProductID) error {
	delete(tv.parent.products, id)
	return nil
}

func (tv *txView) ListProducts(_ context.Context) ([]market.Product, error) {
	var products []market.Product
	for _, p := range tv.parent.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

func (tv *txView) AppendNotification(_ context.Context, n market.Notification) error {
	tv.parent.notifications = append(tv.parent.notifications, n)
	return nil
}

func (tv *txView) ListNotifications(_ context.Context, limit int) ([]market.Notification, error) {
	result := append([]market.Notification{}, tv.parent.notifications...)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (tv *txView) AppendEntry(_ context.Context, e market.LedgerEntry) error {
	return tv.parent.appendEntryLocked(e)
}

func (tv *txView) EntryExists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}

func (tv *txView) EntriesForUser(_ context.Context, id market.UserID) ([]market.LedgerEntry, error) {
	var entries []market.LedgerEntry
	for _, e := range tv.parent.entries {
		if e.UserID == id {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Compile-time interface checks.
var (
	_ market.TxStore = (*Memory)(nil)
	_ market.Store   = (*txView)(nil)
)
