/*
label.go - Audit label rendering

Each calling flow builds its own sentence before appending to the audit
log; the log itself stores opaque text. Dates render as day/month/year
with a separate hour:minute clause, matching the existing notification
corpus this system replaces.
*/
package market

import (
	"fmt"
	"time"
)

const (
	labelDateLayout = "02/01/2006"
	labelTimeLayout = "15:04"
)

// PurchaseLabel describes a completed purchase.
func PurchaseLabel(u *User, p *Product, at time.Time) string {
	return fmt.Sprintf("User %s (%s) purchased product %q on %s at %s.",
		u.FullName(), u.Email, p.Name, at.Format(labelDateLayout), at.Format(labelTimeLayout))
}

// ProductCreatedLabel describes an admin adding a product.
func ProductCreatedLabel(p *Product, actor *User, at time.Time) string {
	return fmt.Sprintf("Product %q (%s) added by %s (%s) on %s at %s.",
		p.Name, p.ID, actor.FullName(), actor.Email, at.Format(labelDateLayout), at.Format(labelTimeLayout))
}

// ProductEditedLabel describes an admin editing a product.
func ProductEditedLabel(p *Product, actor *User, at time.Time) string {
	return fmt.Sprintf("Product %q (%s) edited by %s (%s) on %s at %s.",
		p.Name, p.ID, actor.FullName(), actor.Email, at.Format(labelDateLayout), at.Format(labelTimeLayout))
}

// ProductDeletedLabel describes an admin deleting a product.
func ProductDeletedLabel(p *Product, actor *User, at time.Time) string {
	return fmt.Sprintf("Product %q (%s) deleted by %s (%s) on %s at %s.",
		p.Name, p.ID, actor.FullName(), actor.Email, at.Format(labelDateLayout), at.Format(labelTimeLayout))
}

// UserToggledLabel describes an admin activating or deactivating a user.
func UserToggledLabel(subject *User, actor *User, at time.Time) string {
	state := "deactivated"
	if subject.Active {
		state = "activated"
	}
	return fmt.Sprintf("User %s (%s) %s by %s (%s) on %s at %s.",
		subject.FullName(), subject.Email, state, actor.FullName(), actor.Email,
		at.Format(labelDateLayout), at.Format(labelTimeLayout))
}

// GrantSummaryLabel describes one completed bulk grant run.
func GrantSummaryLabel(credited int, bonus Amount, at time.Time) string {
	return fmt.Sprintf("Granted %v points to %d active users on %s at %s.",
		bonus, credited, at.Format(labelDateLayout), at.Format(labelTimeLayout))
}
