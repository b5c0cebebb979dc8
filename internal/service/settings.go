package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
)

// SettingsStore defines the DB methods needed for application settings.
// Satisfied by *database.Queries; narrow interface for testability.
type SettingsStore interface {
	EnsureAppSettings(ctx context.Context) error
	GetAppSettings(ctx context.Context) (database.AppSetting, error)
	UpdateAppSettings(ctx context.Context, arg database.UpdateAppSettingsParams) (database.AppSetting, error)
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
}

type Settings struct {
	DefaultBranchID    *uuid.UUID
	NotificationEmail  string
	EnableOrderSound   bool
	MinimumOrderAmount decimal.Decimal
	Currency           string
	CompanyName        string
	UpdatedAt          time.Time
}

// UpdateSettingsRequest is a partial update. An empty DefaultBranchID clears it.
type UpdateSettingsRequest struct {
	DefaultBranchID    *string
	NotificationEmail  *string
	EnableOrderSound   *bool
	MinimumOrderAmount *string
	Currency           *string
	CompanyName        *string
}

type SettingsService struct {
	store SettingsStore
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

// Get returns the settings row, creating it with defaults on first access.
func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	row, err := s.store.GetAppSettings(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := s.store.EnsureAppSettings(ctx); err != nil {
			return Settings{}, apperr.FromStore(err, "create settings", "settings not found")
		}
		row, err = s.store.GetAppSettings(ctx)
	}
	if err != nil {
		return Settings{}, apperr.FromStore(err, "get settings", "settings not found")
	}
	return toSettings(row), nil
}

func (s *SettingsService) Update(ctx context.Context, req UpdateSettingsRequest) (Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return Settings{}, err
	}

	fields := map[string]string{}
	next := current

	if req.DefaultBranchID != nil {
		raw := strings.TrimSpace(*req.DefaultBranchID)
		if raw == "" {
			next.DefaultBranchID = nil
		} else if id, err := uuid.Parse(raw); err != nil {
			fields["default_branch_id"] = "invalid branch id"
		} else if _, err := s.store.GetBranch(ctx, id); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return Settings{}, apperr.FromStore(err, "get branch", "branch not found")
			}
			fields["default_branch_id"] = "branch not found"
		} else {
			next.DefaultBranchID = &id
		}
	}
	if req.NotificationEmail != nil {
		email := strings.TrimSpace(*req.NotificationEmail)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				fields["notification_email"] = "invalid email address"
			}
		}
		next.NotificationEmail = email
	}
	if req.EnableOrderSound != nil {
		next.EnableOrderSound = *req.EnableOrderSound
	}
	if req.MinimumOrderAmount != nil {
		d, err := decimal.NewFromString(strings.TrimSpace(*req.MinimumOrderAmount))
		switch {
		case err != nil:
			fields["minimum_order_amount"] = "must be a decimal number"
		case d.IsNegative():
			fields["minimum_order_amount"] = "must not be negative"
		default:
			next.MinimumOrderAmount = d
		}
	}
	if req.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*req.Currency))
		if len(c) != 3 {
			fields["currency"] = "currency must be a 3-letter code"
		}
		next.Currency = c
	}
	if req.CompanyName != nil {
		next.CompanyName = strings.TrimSpace(*req.CompanyName)
	}
	if len(fields) > 0 {
		return Settings{}, apperr.Validation("invalid settings", fields)
	}

	params := database.UpdateAppSettingsParams{
		EnableOrderSound:   next.EnableOrderSound,
		MinimumOrderAmount: decimalToNumeric(next.MinimumOrderAmount),
		Currency:           next.Currency,
		NotificationEmail:  optText(next.NotificationEmail),
		CompanyName:        optText(next.CompanyName),
	}
	if next.DefaultBranchID != nil {
		params.DefaultBranchID = pgtype.UUID{Bytes: *next.DefaultBranchID, Valid: true}
	}

	row, err := s.store.UpdateAppSettings(ctx, params)
	if err != nil {
		return Settings{}, apperr.FromStore(err, "update settings", "settings not found")
	}
	return toSettings(row), nil
}

func toSettings(row database.AppSetting) Settings {
	out := Settings{
		EnableOrderSound:   row.EnableOrderSound,
		MinimumOrderAmount: numericToDecimal(row.MinimumOrderAmount),
		Currency:           row.Currency,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.DefaultBranchID.Valid {
		id := uuid.UUID(row.DefaultBranchID.Bytes)
		out.DefaultBranchID = &id
	}
	if row.NotificationEmail.Valid {
		out.NotificationEmail = row.NotificationEmail.String
	}
	if row.CompanyName.Valid {
		out.CompanyName = row.CompanyName.String
	}
	return out
}
