package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/service"
)

// UserServicer defines the service methods needed by user handlers.
// Satisfied by *service.UserService; narrow interface for testability.
type UserServicer interface {
	List(ctx context.Context, f service.ListUsersFilter) ([]database.User, error)
	Create(ctx context.Context, req service.CreateUserRequest) (database.User, error)
	Update(ctx context.Context, id uuid.UUID, req service.UpdateUserRequest) (database.User, error)
	Deactivate(ctx context.Context, id uuid.UUID) (database.User, error)
}

// UserHandler handles account management. Every route is admin only.
type UserHandler struct {
	svc UserServicer
	log *zap.Logger
}

func NewUserHandler(svc UserServicer, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{svc: svc, log: log}
}

// RegisterRoutes registers user endpoints.
// Expected to be mounted at /users behind RequireRole(ADMIN).
func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// --- Request / Response types ---

type createUserRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	Role     string  `json:"role"`
	BranchID *string `json:"branch_id"`
}

type updateUserRequest struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	FullName    *string `json:"full_name"`
	Role        *string `json:"role"`
	BranchID    *string `json:"branch_id"`
	ClearBranch bool    `json:"clear_branch"`
	IsActive    *bool   `json:"is_active"`
}

type userDetailResponse struct {
	ID        uuid.UUID  `json:"id"`
	BranchID  *uuid.UUID `json:"branch_id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Role      string     `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toUserDetailResponse(u database.User) userDetailResponse {
	return userDetailResponse{
		ID:        u.ID,
		BranchID:  uuidPtr(u.BranchID),
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// --- Handlers ---

// List handles GET /users?branch_id=&active_only=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	var f service.ListUsersFilter
	if s := r.URL.Query().Get("branch_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid branch_id"})
			return
		}
		f.BranchID = id
	}
	if s := r.URL.Query().Get("active_only"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid active_only, use true or false"})
			return
		}
		f.ActiveOnly = v
	}

	users, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, h.log, "list users", err)
		return
	}
	resp := make([]userDetailResponse, len(users))
	for i, u := range users {
		resp[i] = toUserDetailResponse(u)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create handles POST /users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	branchID, ok := optionalUUID(w, req.BranchID, "branch_id")
	if !ok {
		return
	}

	user, err := h.svc.Create(r.Context(), service.CreateUserRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     req.Role,
		BranchID: branchID,
	})
	if err != nil {
		writeError(w, h.log, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDetailResponse(user))
}

// Update handles PUT /users/{id}. Fields left out keep their value.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "user")
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	branchID, ok := optionalUUID(w, req.BranchID, "branch_id")
	if !ok {
		return
	}

	user, err := h.svc.Update(r.Context(), id, service.UpdateUserRequest{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		Role:        req.Role,
		BranchID:    branchID,
		ClearBranch: req.ClearBranch,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, h.log, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDetailResponse(user))
}

// Delete handles DELETE /users/{id} by deactivating the account.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "id", "user")
	if !ok {
		return
	}
	if _, err := h.svc.Deactivate(r.Context(), id); err != nil {
		writeError(w, h.log, "deactivate user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func optionalUUID(w http.ResponseWriter, s *string, field string) (*uuid.UUID, bool) {
	if s == nil || *s == "" {
		return nil, true
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: map[string]string{field: "invalid " + field},
		})
		return nil, false
	}
	return &id, true
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}
