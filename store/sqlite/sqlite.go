/*
Package sqlite provides the SQLite-backed market.TxStore.

PURPOSE:
  Implements persistence for users, products, notifications, and ledger
  entries. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch notifications or ledger_entries
  - The idempotency_key UNIQUE index backs ledger idempotency
  - users.points carries a CHECK(points >= 0) so a negative balance can
    never be committed even by a buggy caller

CONCURRENCY:
  - WithTx holds the store mutex for the duration of the transaction, and
    inner reads/writes go through the open *sql.Tx
  - users.version is an optimistic lock: a stale save returns
    market.ErrConcurrencyConflict

WAL MODE:
  SQLite is opened with WAL for better read concurrency and crash
  recovery; foreign keys are enforced.

KEY TABLES:
  users:          balance holders (points, version, active flag, role)
  products:       purchasable items
  notifications:  immutable audit records, listed newest first
  ledger_entries: immutable per-change trail with idempotency keys
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/pointsmarket/market"
)

// Store implements market.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'member',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		points INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_active ON users(active);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price INTEGER NOT NULL CHECK (price >= 0),
		created_by TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL
	);

	-- Notifications (append-only audit log)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		label TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT
	);

	-- Hot path: reverse-chronological listing with id as tiebreaker
	CREATE INDEX IF NOT EXISTS idx_notifications_created
		ON notifications(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_notifications_user
		ON notifications(user_id);

	-- Ledger entries (append-only balance trail)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		delta INTEGER NOT NULL,
		entry_type TEXT NOT NULL,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user
		ON ledger_entries(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the row-level helpers
// can run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id market.UserID) (*market.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q dbtx, id market.UserID) (*market.User, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, role, active, points, version, created_at
		 FROM users WHERE id = ?`, id)

	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func scanUser(scan func(...any) error) (*market.User, error) {
	var (
		u         market.User
		role      string
		points    int64
		createdAt string
	)
	if err := scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &role,
		&u.Active, &points, &u.Version, &createdAt); err != nil {
		return nil, err
	}
	u.Role = market.Role(role)
	u.Points = market.NewAmount(points)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (s *Store) SaveUser(ctx context.Context, u *market.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUser(ctx, s.db, u)
}

func saveUser(ctx context.Context, q dbtx, u *market.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	// Optimistic update first; falls through to insert for new users.
	res, err := q.ExecContext(ctx,
		`UPDATE users
		 SET first_name = ?, last_name = ?, email = ?, role = ?, active = ?,
		     points = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		u.FirstName, u.LastName, u.Email, string(u.Role), u.Active,
		u.Points.Int64(), u.ID, u.Version)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		u.Version++
		return nil
	}

	var count int
	if err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE id = ?", u.ID).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return market.ErrConcurrencyConflict
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, email, role, active, points, version, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FirstName, u.LastName, u.Email, string(u.Role), u.Active,
		u.Points.Int64(), u.Version+1, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	u.Version++
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]market.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryUsers(ctx, s.db, userSelect+" ORDER BY last_name, first_name, id")
}

func (s *Store) ListActiveUsers(ctx context.Context) ([]market.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryUsers(ctx, s.db, userSelect+" WHERE active = TRUE ORDER BY last_name, first_name, id")
}

const userSelect = `SELECT id, first_name, last_name, email, role, active, points, version, created_at FROM users`

func queryUsers(ctx context.Context, q dbtx, query string, args ...any) ([]market.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []market.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id market.ProductID) (*market.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func getProduct(ctx context.Context, q dbtx, id market.ProductID) (*market.Product, error) {
	var (
		p         market.Product
		price     int64
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		"SELECT id, name, price, created_by, created_at FROM products WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &price, &p.CreatedBy, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	p.Price = market.NewAmount(price)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (s *Store) SaveProduct(ctx context.Context, p *market.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProduct(ctx, s.db, p)
}

func saveProduct(ctx context.Context, q dbtx, p *market.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO products (id, name, price, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price`,
		p.ID, p.Name, p.Price.Int64(), p.CreatedBy, p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id market.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteProduct(ctx, s.db, id)
}

func deleteProduct(ctx context.Context, q dbtx, id market.ProductID) error {
	_, err := q.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]market.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(ctx, s.db)
}

func listProducts(ctx context.Context, q dbtx) ([]market.Product, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, price, created_by, created_at FROM products ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []market.Product
	for rows.Next() {
		var (
			p         market.Product
			price     int64
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		p.Price = market.NewAmount(price)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// NOTIFICATIONS (append-only)
// =============================================================================

func (s *Store) AppendNotification(ctx context.Context, n market.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendNotification(ctx, s.db, n)
}

func appendNotification(ctx context.Context, q dbtx, n market.Notification) error {
	var updatedAt *string
	if n.UpdatedAt != nil {
		t := n.UpdatedAt.UTC().Format(time.RFC3339)
		updatedAt = &t
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, label, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.Label, n.CreatedAt.UTC().Format(time.RFC3339), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, limit int) ([]market.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listNotifications(ctx, s.db, limit)
}

func listNotifications(ctx context.Context, q dbtx, limit int) ([]market.Notification, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, label, created_at, updated_at
		 FROM notifications
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []market.Notification
	for rows.Next() {
		var (
			n         market.Notification
			createdAt string
			updatedAt sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Label, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		n.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if updatedAt.Valid {
			t, _ := time.Parse(time.RFC3339, updatedAt.String)
			n.UpdatedAt = &t
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e market.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, q dbtx, e market.LedgerEntry) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, delta, entry_type, reason, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Delta.Int64(), string(e.Type), e.Reason,
		nullString(e.IdempotencyKey), e.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return market.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entryExists(ctx, s.db, idempotencyKey)
}

func entryExists(ctx context.Context, q dbtx, idempotencyKey string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) EntriesForUser(ctx context.Context, id market.UserID) ([]market.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return entriesForUser(ctx, s.db, id)
}

func entriesForUser(ctx context.Context, q dbtx, id market.UserID) ([]market.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, user_id, delta, entry_type, reason, idempotency_key, created_at
		 FROM ledger_entries
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []market.LedgerEntry
	for rows.Next() {
		var (
			e         market.LedgerEntry
			delta     int64
			entryType string
			reason    sql.NullString
			idemKey   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &delta, &entryType, &reason, &idemKey, &createdAt); err != nil {
			return nil, err
		}
		e.Delta = market.NewAmount(delta)
		e.Type = market.EntryType(entryType)
		e.Reason = reason.String
		e.IdempotencyKey = idemKey.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store mutex is
// held for the duration so read-modify-write cycles on a user balance are
// serialized even across connections.
func (s *Store) WithTx(ctx context.Context, fn func(market.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every operation through the open transaction. It does
// not touch the parent mutex, which WithTx already holds.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetUser(ctx context.Context, id market.UserID) (*market.User, error) {
	return getUser(ctx, ts.tx, id)
}

func (ts *txStore) SaveUser(ctx context.Context, u *market.User) error {
	return saveUser(ctx, ts.tx, u)
}

func (ts *txStore) ListUsers(ctx context.Context) ([]market.User, error) {
	return queryUsers(ctx, ts.tx, userSelect+" ORDER BY last_name, first_name, id")
}

func (ts *txStore) ListActiveUsers(ctx context.Context) ([]market.User, error) {
	return queryUsers(ctx, ts.tx, userSelect+" WHERE active = TRUE ORDER BY last_name, first_name, id")
}

func (ts *txStore) GetProduct(ctx context.Context, id market.ProductID) (*market.Product, error) {
	return getProduct(ctx, ts.tx, id)
}

func (ts *txStore) SaveProduct(ctx context.Context, p *market.Product) error {
	return saveProduct(ctx, ts.tx, p)
}

func (ts *txStore) DeleteProduct(ctx context.Context, id market.ProductID) error {
	return deleteProduct(ctx, ts.tx, id)
}

func (ts *txStore) ListProducts(ctx context.Context) ([]market.Product, error) {
	return listProducts(ctx, ts.tx)
}

func (ts *txStore) AppendNotification(ctx context.Context, n market.Notification) error {
	return appendNotification(ctx, ts.tx, n)
}

func (ts *txStore) ListNotifications(ctx context.Context, limit int) ([]market.Notification, error) {
	return listNotifications(ctx, ts.tx, limit)
}

func (ts *txStore) AppendEntry(ctx context.Context, e market.LedgerEntry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	return entryExists(ctx, ts.tx, idempotencyKey)
}

func (ts *txStore) EntriesForUser(ctx context.Context, id market.UserID) ([]market.LedgerEntry, error) {
	return entriesForUser(ctx, ts.tx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// Compile-time interface checks.
var (
	_ market.TxStore = (*Store)(nil)
	_ market.Store   = (*txStore)(nil)
)
