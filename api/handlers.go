/*
handlers.go - HTTP handlers for the points marketplace

PURPOSE:
  Translates HTTP requests into market operations and market errors into
  status codes. Handlers stay thin: validation of the wire shape happens
  here, business rules live in the market package.

ERROR MAPPING:
  ErrInvalidAmount, ErrEmptyLabel      -> 400
  unknown actor                        -> 401
  ErrAccountInactive, not owner        -> 403
  ErrUserNotFound, ErrProductNotFound  -> 404
  ErrInsufficientBalance               -> 409
  ErrDuplicateEntry                    -> 409
  ErrConcurrencyConflict               -> 409
  anything else                        -> 500
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/pointsmarket/jobs"
	"github.com/warp/pointsmarket/market"
)

// Handler holds the dependencies shared by all HTTP handlers.
type Handler struct {
	Store    market.TxStore
	Purchase *market.Purchase
	Grants   *market.BulkGrant
	Queue    *jobs.Queue
	Audit    *market.AuditLog
	Ledger   *market.Ledger
	Clock    market.Clock
	Logger   *slog.Logger
}

// NewHandler wires a handler around the given store. Pass nil for clock or
// logger to get the defaults.
func NewHandler(store market.TxStore, queue *jobs.Queue, clock market.Clock, logger *slog.Logger) *Handler {
	if clock == nil {
		clock = market.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Purchase: market.NewPurchase(store, clock),
		Grants:   market.NewBulkGrant(store, clock, logger),
		Queue:    queue,
		Audit:    market.NewAuditLog(clock),
		Ledger:   market.NewLedger(clock),
		Clock:    clock,
		Logger:   logger,
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	dtos := make([]ProductDTO, 0, len(products))
	for i := range products {
		dtos = append(dtos, toProductDTO(&products[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct handles GET /api/products/{productID}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := market.ProductID(chi.URLParam(r, "productID"))
	product, err := h.Store.GetProduct(r.Context(), id)
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found", string(id))
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// CreateProduct handles POST /api/products (admin only). The creation is
// recorded as a notification in the same transaction as the product row.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())

	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "product name is required", "")
		return
	}
	if req.Price <= 0 {
		writeError(w, http.StatusBadRequest, "price must be a positive number of points", "")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	product := &market.Product{
		ID:        market.ProductID(req.ID),
		Name:      req.Name,
		Price:     market.NewAmount(req.Price),
		CreatedBy: actor.ID,
		CreatedAt: h.Clock.Now(),
	}

	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		if err := s.SaveProduct(r.Context(), product); err != nil {
			return err
		}
		label := market.ProductCreatedLabel(product, actor, h.Clock.Now())
		_, err := h.Audit.Append(r.Context(), s, actor.ID, label, h.Clock.Now())
		return err
	})
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

// UpdateProduct handles PUT /api/products/{productID} (admin only). Only
// the admin who created a product may edit it.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())
	id := market.ProductID(chi.URLParam(r, "productID"))

	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var updated *market.Product
	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		product, err := s.GetProduct(r.Context(), id)
		if err != nil {
			return err
		}
		if product == nil {
			return market.ErrProductNotFound
		}
		if product.CreatedBy != actor.ID {
			return errNotOwner
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return errEmptyName
			}
			product.Name = name
		}
		if req.Price != nil {
			if *req.Price <= 0 {
				return &market.InvalidAmountError{Amount: market.NewAmount(*req.Price)}
			}
			product.Price = market.NewAmount(*req.Price)
		}
		if err := s.SaveProduct(r.Context(), product); err != nil {
			return err
		}
		label := market.ProductEditedLabel(product, actor, h.Clock.Now())
		if _, err := h.Audit.Append(r.Context(), s, actor.ID, label, h.Clock.Now()); err != nil {
			return err
		}
		updated = product
		return nil
	})
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(updated))
}

// DeleteProduct handles DELETE /api/products/{productID} (admin only).
// Only the creator may delete; the deletion leaves an audit notification.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())
	id := market.ProductID(chi.URLParam(r, "productID"))

	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		product, err := s.GetProduct(r.Context(), id)
		if err != nil {
			return err
		}
		if product == nil {
			return market.ErrProductNotFound
		}
		if product.CreatedBy != actor.ID {
			return errNotOwner
		}
		if err := s.DeleteProduct(r.Context(), id); err != nil {
			return err
		}
		label := market.ProductDeletedLabel(product, actor, h.Clock.Now())
		_, err = h.Audit.Append(r.Context(), s, actor.ID, label, h.Clock.Now())
		return err
	})
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Buy handles POST /api/products/{productID}/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())
	id := market.ProductID(chi.URLParam(r, "productID"))

	balance, err := h.Purchase.Buy(r.Context(), actor.ID, id)
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BuyResponse{
		ProductID: string(id),
		Balance:   balance.Int64(),
	})
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers handles GET /api/users (admin only).
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	dtos := make([]UserDTO, 0, len(users))
	for i := range users {
		dtos = append(dtos, toUserDTO(&users[i]))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser handles POST /api/users (admin only).
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required", "")
		return
	}
	if req.Points < 0 {
		writeError(w, http.StatusBadRequest, "starting points must not be negative", "")
		return
	}
	role := market.RoleMember
	if req.Role != "" {
		switch market.Role(req.Role) {
		case market.RoleAdmin, market.RoleMember:
			role = market.Role(req.Role)
		default:
			writeError(w, http.StatusBadRequest, "unknown role", req.Role)
			return
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	user := &market.User{
		ID:        market.UserID(req.ID),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     req.Email,
		Role:      role,
		Active:    active,
		Points:    market.NewAmount(req.Points),
		CreatedAt: h.Clock.Now(),
	}
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// ToggleUser handles POST /api/users/{userID}/toggle (admin only). Flips
// the active flag and records the change as a notification for the admin.
func (h *Handler) ToggleUser(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())
	id := market.UserID(chi.URLParam(r, "userID"))

	var toggled *market.User
	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		user, err := s.GetUser(r.Context(), id)
		if err != nil {
			return err
		}
		if user == nil {
			return market.ErrUserNotFound
		}
		user.Active = !user.Active
		if err := s.SaveUser(r.Context(), user); err != nil {
			return err
		}
		label := market.UserToggledLabel(user, actor, h.Clock.Now())
		if _, err := h.Audit.Append(r.Context(), s, actor.ID, label, h.Clock.Now()); err != nil {
			return err
		}
		toggled = user
		return nil
	})
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(toggled))
}

// GetBalance handles GET /api/users/{userID}/balance. Members may only
// read their own balance; admins may read anyone's.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())
	id := market.UserID(chi.URLParam(r, "userID"))
	if actor.ID != id && actor.Role != market.RoleAdmin {
		writeError(w, http.StatusForbidden, "cannot read another user's balance", "")
		return
	}

	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found", string(id))
		return
	}
	entries, err := h.Store.EntriesForUser(r.Context(), id)
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	dto := BalanceDTO{
		UserID:  string(user.ID),
		Points:  user.Points.Int64(),
		Entries: make([]EntryDTO, 0, len(entries)),
	}
	for _, e := range entries {
		dto.Entries = append(dto.Entries, EntryDTO{
			ID:        string(e.ID),
			Delta:     e.Delta.Int64(),
			Type:      string(e.Type),
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, dto)
}

// UpdateProfile handles PUT /api/profile. The actor edits their own
// first and last name through a typed request; other fields are off
// limits here.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	var updated *market.User
	err := h.Store.WithTx(r.Context(), func(s market.Store) error {
		user, err := s.GetUser(r.Context(), actor.ID)
		if err != nil {
			return err
		}
		if user == nil {
			return market.ErrUserNotFound
		}
		if req.FirstName != nil {
			user.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			user.LastName = strings.TrimSpace(*req.LastName)
		}
		if err := s.SaveUser(r.Context(), user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(updated))
}

// =============================================================================
// ADMIN: NOTIFICATIONS AND GRANTS
// =============================================================================

// ListNotifications handles GET /api/admin/notifications?limit=N, newest
// first.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := market.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", raw)
			return
		}
		limit = n
	}
	notifications, err := h.Audit.ListRecent(r.Context(), h.Store, limit)
	if err != nil {
		h.writeMarketError(w, r, err)
		return
	}
	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, toNotificationDTO(n))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DispatchBulkGrant handles POST /api/admin/grants. The grant runs in the
// background; the response only acknowledges that it was queued.
func (h *Handler) DispatchBulkGrant(w http.ResponseWriter, r *http.Request) {
	actor := ActorFrom(r.Context())
	runID := uuid.NewString()

	job := &jobs.BulkGrantJob{
		Runner:  h.Grants,
		RunID:   runID,
		ActorID: actor.ID,
	}
	if err := h.Queue.Enqueue(job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "grant queue is full, try again later", "")
			return
		}
		h.writeMarketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, GrantDispatchResponse{RunID: runID, Queued: true})
}

// =============================================================================
// HELPERS
// =============================================================================

// errNotOwner marks product edits by an admin who did not create the
// product.
var errNotOwner = errors.New("pointsmarket: not the product owner")

var errEmptyName = errors.New("pointsmarket: product name is required")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

// writeMarketError maps market errors onto HTTP status codes and logs the
// unexpected ones.
func (h *Handler) writeMarketError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrEmptyLabel),
		errors.Is(err, errEmptyName):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, errNotOwner), errors.Is(err, market.ErrAccountInactive):
		writeError(w, http.StatusForbidden, err.Error(), "")
	case market.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrDuplicateEntry),
		errors.Is(err, market.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, err.Error(), "")
	default:
		h.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}
