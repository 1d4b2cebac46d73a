/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

Validation is done in handlers; DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/warp/pointsmarket/market"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
	Points    int64  `json:"points"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toUserDTO(u *market.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      string(u.Role),
		Active:    u.Active,
		Points:    u.Points.Int64(),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

// ProductDTO represents a product in API responses.
type ProductDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at,omitempty"`
}

func toProductDTO(p *market.Product) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		Price:     p.Price.Int64(),
		CreatedBy: string(p.CreatedBy),
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

// NotificationDTO represents an audit notification.
type NotificationDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Label     string  `json:"label"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt *string `json:"updated_at,omitempty"`
}

func toNotificationDTO(n market.Notification) NotificationDTO {
	dto := NotificationDTO{
		ID:        string(n.ID),
		UserID:    string(n.UserID),
		Label:     n.Label,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.UpdatedAt != nil {
		s := n.UpdatedAt.Format(time.RFC3339)
		dto.UpdatedAt = &s
	}
	return dto
}

// EntryDTO represents a ledger entry in balance history responses.
type EntryDTO struct {
	ID        string `json:"id"`
	Delta     int64  `json:"delta"`
	Type      string `json:"type"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

// BalanceDTO is the balance summary for one user.
type BalanceDTO struct {
	UserID  string     `json:"user_id"`
	Points  int64      `json:"points"`
	Entries []EntryDTO `json:"entries,omitempty"`
}

// BuyResponse is returned by a successful purchase.
type BuyResponse struct {
	ProductID string `json:"product_id"`
	Balance   int64  `json:"balance"`
}

// GrantDispatchResponse acknowledges that a bulk grant was queued (not
// that it completed).
type GrantDispatchResponse struct {
	RunID  string `json:"run_id"`
	Queued bool   `json:"queued"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateProductRequest is the request to create a product.
type CreateProductRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// UpdateProductRequest is the request to edit a product.
type UpdateProductRequest struct {
	Name  *string `json:"name,omitempty"`
	Price *int64  `json:"price,omitempty"`
}

// UpdateProfileRequest carries the typed, validated profile fields a user
// may change. Absent fields are left untouched.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// CreateUserRequest is the admin request to create a user.
type CreateUserRequest struct {
	ID        string `json:"id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	Active    *bool  `json:"active,omitempty"`
	Points    int64  `json:"points,omitempty"`
}
