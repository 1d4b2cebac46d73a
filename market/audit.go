/*
audit.go - Notification audit log

PURPOSE:
  Durably records a rendered description of a state-changing event,
  associated with the user who is its subject or actor. Label formatting
  is the caller's responsibility (see label.go); the audit log stores
  opaque pre-rendered text.

INVARIANTS:
  - Labels are non-empty after trimming
  - Timestamps are stored as UTC instants at second granularity
  - Entries are immutable and never deleted by the core
*/
package market

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultListLimit caps ListRecent when the caller passes no limit.
const DefaultListLimit = 50

// AuditLog appends and lists notification records.
type AuditLog struct {
	Clock Clock
}

// NewAuditLog creates an AuditLog. A nil clock falls back to SystemClock.
func NewAuditLog(clock Clock) *AuditLog {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AuditLog{Clock: clock}
}

// Append records a notification for the user. A zero timestamp defaults
// to now; either way the stored instant is UTC, truncated to seconds.
// Fails with ErrEmptyLabel if the label is empty after trimming.
func (a *AuditLog) Append(ctx context.Context, s Store, userID UserID, label string, at time.Time) (NotificationID, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrEmptyLabel
	}

	if at.IsZero() {
		at = a.Clock.Now()
	}

	n := Notification{
		ID:        NotificationID(uuid.NewString()),
		UserID:    userID,
		Label:     label,
		CreatedAt: at.UTC().Truncate(time.Second),
	}
	if err := s.AppendNotification(ctx, n); err != nil {
		return "", err
	}
	return n.ID, nil
}

// ListRecent returns up to limit notifications, newest first, ties on
// CreatedAt broken by id descending. Read-only; each call re-queries the
// store, so callers get a restartable view rather than a live subscription.
func (a *AuditLog) ListRecent(ctx context.Context, s Store, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.ListNotifications(ctx, limit)
}
