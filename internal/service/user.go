package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
)

const (
	emailConstraint   = "users_email_key"
	minPasswordLength = 8
)

// UserStore defines the DB methods needed for account management.
// Satisfied by *database.Queries; narrow interface for testability.
type UserStore interface {
	ListUsers(ctx context.Context, arg database.ListUsersParams) ([]database.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (database.User, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	UpdateUser(ctx context.Context, arg database.UpdateUserParams) (database.User, error)
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
}

type CreateUserRequest struct {
	Email    string
	Password string
	FullName string
	Role     string
	BranchID *uuid.UUID // nil leaves the account unbound
}

// UpdateUserRequest is a partial update; nil fields keep their value.
// ClearBranch unbinds the account from its branch.
type UpdateUserRequest struct {
	Email       *string
	Password    *string
	FullName    *string
	Role        *string
	BranchID    *uuid.UUID
	ClearBranch bool
	IsActive    *bool
}

type ListUsersFilter struct {
	BranchID   uuid.UUID // uuid.Nil lists every branch
	ActiveOnly bool
}

// UserService manages staff, admin and storefront accounts.
type UserService struct {
	store UserStore
	cost  int
	log   *zap.Logger
}

func NewUserService(store UserStore, log *zap.Logger) *UserService {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserService{store: store, cost: bcrypt.DefaultCost, log: log}
}

func (s *UserService) List(ctx context.Context, f ListUsersFilter) ([]database.User, error) {
	arg := database.ListUsersParams{ActiveOnly: f.ActiveOnly}
	if f.BranchID != uuid.Nil {
		arg.BranchID = pgtype.UUID{Bytes: f.BranchID, Valid: true}
	}
	users, err := s.store.ListUsers(ctx, arg)
	if err != nil {
		return nil, apperr.FromStore(err, "list users", "user not found")
	}
	return users, nil
}

// Create registers an account. Emails are unique across every role.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (database.User, error) {
	fields := map[string]string{}
	email := normalizeEmail(req.Email, fields)
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		fields["full_name"] = "full_name is required"
	}
	if !validRole(req.Role) {
		fields["role"] = "role must be ADMIN, STAFF or STOREFRONT"
	}
	validatePassword(req.Password, fields)
	branch, err := s.resolveBranch(ctx, req.BranchID, fields)
	if err != nil {
		return database.User{}, err
	}
	if len(fields) > 0 {
		return database.User{}, apperr.Validation("invalid user", fields)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return database.User{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	user, err := s.store.CreateUser(ctx, database.CreateUserParams{
		BranchID:       branch,
		Email:          email,
		HashedPassword: string(hashed),
		FullName:       name,
		Role:           req.Role,
	})
	if err != nil {
		if apperr.IsUniqueViolation(err, emailConstraint) {
			return database.User{}, apperr.Conflict("email is already registered")
		}
		return database.User{}, apperr.FromStore(err, "create user", "user not found")
	}
	s.log.Info("user created", zap.String("user_id", user.ID.String()), zap.String("role", user.Role))
	return user, nil
}

func (s *UserService) Update(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (database.User, error) {
	current, err := s.store.GetUser(ctx, id)
	if err != nil {
		return database.User{}, apperr.FromStore(err, "get user", "user not found")
	}

	params := database.UpdateUserParams{
		ID:       current.ID,
		BranchID: current.BranchID,
		Email:    current.Email,
		FullName: current.FullName,
		Role:     current.Role,
		IsActive: current.IsActive,
	}
	fields := map[string]string{}
	if req.Email != nil {
		params.Email = normalizeEmail(*req.Email, fields)
	}
	if req.FullName != nil {
		params.FullName = strings.TrimSpace(*req.FullName)
		if params.FullName == "" {
			fields["full_name"] = "full_name cannot be empty"
		}
	}
	if req.Role != nil {
		params.Role = *req.Role
		if !validRole(params.Role) {
			fields["role"] = "role must be ADMIN, STAFF or STOREFRONT"
		}
	}
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}
	switch {
	case req.ClearBranch:
		params.BranchID = pgtype.UUID{}
	case req.BranchID != nil:
		b, err := s.resolveBranch(ctx, req.BranchID, fields)
		if err != nil {
			return database.User{}, err
		}
		params.BranchID = b
	}
	if req.Password != nil {
		validatePassword(*req.Password, fields)
	}
	if len(fields) > 0 {
		return database.User{}, apperr.Validation("invalid user", fields)
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.cost)
		if err != nil {
			return database.User{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
		}
		params.HashedPassword = pgtype.Text{String: string(hashed), Valid: true}
	}

	user, err := s.store.UpdateUser(ctx, params)
	if err != nil {
		if apperr.IsUniqueViolation(err, emailConstraint) {
			return database.User{}, apperr.Conflict("email is already registered")
		}
		return database.User{}, apperr.FromStore(err, "update user", "user not found")
	}
	return user, nil
}

// Deactivate disables sign-in. Accounts are never removed; orders keep no user reference.
func (s *UserService) Deactivate(ctx context.Context, id uuid.UUID) (database.User, error) {
	inactive := false
	user, err := s.Update(ctx, id, UpdateUserRequest{IsActive: &inactive})
	if err != nil {
		return database.User{}, err
	}
	s.log.Info("user deactivated", zap.String("user_id", id.String()))
	return user, nil
}

// resolveBranch checks the branch exists. Missing branches become a field error.
func (s *UserService) resolveBranch(ctx context.Context, id *uuid.UUID, fields map[string]string) (pgtype.UUID, error) {
	if id == nil || *id == uuid.Nil {
		return pgtype.UUID{}, nil
	}
	if _, err := s.store.GetBranch(ctx, *id); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return pgtype.UUID{}, apperr.FromStore(err, "get branch", "branch not found")
		}
		fields["branch_id"] = "branch not found"
		return pgtype.UUID{}, nil
	}
	return pgtype.UUID{Bytes: *id, Valid: true}, nil
}

func normalizeEmail(raw string, fields map[string]string) string {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		fields["email"] = "email is required"
		return email
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields["email"] = "invalid email address"
	}
	return email
}

func validatePassword(pw string, fields map[string]string) {
	if utf8.RuneCountInString(pw) < minPasswordLength {
		fields["password"] = "password must be at least 8 characters"
	}
}

func validRole(role string) bool {
	switch role {
	case enum.UserRoleAdmin, enum.UserRoleStaff, enum.UserRoleStorefront:
		return true
	}
	return false
}
