package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/enum"
)

var maxMenuPrice = decimal.RequireFromString("99999999.99")

// MenuStore defines the DB methods needed to manage menu items.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuStore interface {
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
	CreateMenuItem(ctx context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error)
	GetMenuItem(ctx context.Context, arg database.GetMenuItemParams) (database.MenuItem, error)
	UpdateMenuItem(ctx context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error)
	SetMenuItemAvailability(ctx context.Context, arg database.SetMenuItemAvailabilityParams) (database.MenuItem, error)
	DeleteMenuItem(ctx context.Context, arg database.DeleteMenuItemParams) (uuid.UUID, error)
	ListMenuItemsByBranch(ctx context.Context, arg database.ListMenuItemsByBranchParams) ([]database.MenuItem, error)
}

type CreateMenuItemRequest struct {
	BranchID    uuid.UUID
	Name        string
	Description *string
	Price       string
	Category    string
	ImageURL    *string
	IsAvailable *bool // defaults to true
}

// UpdateMenuItemRequest is a partial update; nil fields keep their value.
type UpdateMenuItemRequest struct {
	ID          uuid.UUID
	BranchID    uuid.UUID
	Name        *string
	Description *string
	Price       *string
	Category    *string
	ImageURL    *string
	IsAvailable *bool
}

type MenuService struct {
	store MenuStore
}

func NewMenuService(store MenuStore) *MenuService {
	return &MenuService{store: store}
}

func (s *MenuService) Create(ctx context.Context, req CreateMenuItemRequest) (database.MenuItem, error) {
	fields := map[string]string{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fields["name"] = "name is required"
	}
	price, perr := ParsePrice(req.Price)
	if perr != "" {
		fields["price"] = perr
	}
	category, cerr := NormalizeCategory(req.Category)
	if cerr != "" {
		fields["category"] = cerr
	}
	if len(fields) > 0 {
		return database.MenuItem{}, apperr.Validation("invalid menu item", fields)
	}

	if _, err := s.store.GetBranch(ctx, req.BranchID); err != nil {
		return database.MenuItem{}, apperr.FromStore(err, "get branch", "branch not found")
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	item, err := s.store.CreateMenuItem(ctx, database.CreateMenuItemParams{
		BranchID:    req.BranchID,
		Name:        name,
		Description: textFromPtr(req.Description),
		Price:       decimalToNumeric(price),
		Category:    category,
		ImageUrl:    textFromPtr(req.ImageURL),
		IsAvailable: available,
	})
	if err != nil {
		if apperr.IsForeignKeyViolation(err) {
			return database.MenuItem{}, apperr.NotFound("branch not found")
		}
		return database.MenuItem{}, apperr.FromStore(err, "create menu item", "menu item not found")
	}
	return item, nil
}

func (s *MenuService) Update(ctx context.Context, req UpdateMenuItemRequest) (database.MenuItem, error) {
	current, err := s.store.GetMenuItem(ctx, database.GetMenuItemParams{ID: req.ID, BranchID: req.BranchID})
	if err != nil {
		return database.MenuItem{}, apperr.FromStore(err, "get menu item", "menu item not found")
	}

	params := database.UpdateMenuItemParams{
		ID:          current.ID,
		BranchID:    current.BranchID,
		Name:        current.Name,
		Description: current.Description,
		Price:       current.Price,
		Category:    current.Category,
		ImageUrl:    current.ImageUrl,
		IsAvailable: current.IsAvailable,
	}

	fields := map[string]string{}
	if req.Name != nil {
		params.Name = strings.TrimSpace(*req.Name)
		if params.Name == "" {
			fields["name"] = "name cannot be empty"
		}
	}
	if req.Description != nil {
		params.Description = textFromPtr(req.Description)
	}
	if req.Price != nil {
		price, perr := ParsePrice(*req.Price)
		if perr != "" {
			fields["price"] = perr
		} else {
			params.Price = decimalToNumeric(price)
		}
	}
	if req.Category != nil {
		category, cerr := NormalizeCategory(*req.Category)
		if cerr != "" {
			fields["category"] = cerr
		} else {
			params.Category = category
		}
	}
	if req.ImageURL != nil {
		params.ImageUrl = textFromPtr(req.ImageURL)
	}
	if req.IsAvailable != nil {
		params.IsAvailable = *req.IsAvailable
	}
	if len(fields) > 0 {
		return database.MenuItem{}, apperr.Validation("invalid menu item", fields)
	}

	item, err := s.store.UpdateMenuItem(ctx, params)
	if err != nil {
		return database.MenuItem{}, apperr.FromStore(err, "update menu item", "menu item not found")
	}
	return item, nil
}

func (s *MenuService) SetAvailability(ctx context.Context, branchID, id uuid.UUID, available bool) (database.MenuItem, error) {
	item, err := s.store.SetMenuItemAvailability(ctx, database.SetMenuItemAvailabilityParams{
		ID:          id,
		BranchID:    branchID,
		IsAvailable: available,
	})
	if err != nil {
		return database.MenuItem{}, apperr.FromStore(err, "set menu item availability", "menu item not found")
	}
	return item, nil
}

// Delete removes a menu item. Items referenced by past orders cannot be removed.
func (s *MenuService) Delete(ctx context.Context, branchID, id uuid.UUID) error {
	_, err := s.store.DeleteMenuItem(ctx, database.DeleteMenuItemParams{ID: id, BranchID: branchID})
	if err != nil {
		if apperr.IsForeignKeyViolation(err) {
			return apperr.Conflict("menu item is referenced by existing orders; mark it unavailable instead")
		}
		return apperr.FromStore(err, "delete menu item", "menu item not found")
	}
	return nil
}

// ListByBranch returns every item of the branch, including unavailable ones.
func (s *MenuService) ListByBranch(ctx context.Context, branchID uuid.UUID) ([]database.MenuItem, error) {
	if _, err := s.store.GetBranch(ctx, branchID); err != nil {
		return nil, apperr.FromStore(err, "get branch", "branch not found")
	}
	items, err := s.store.ListMenuItemsByBranch(ctx, database.ListMenuItemsByBranchParams{BranchID: branchID})
	if err != nil {
		return nil, apperr.FromStore(err, "list menu items", "branch not found")
	}
	return items, nil
}

// NormalizeCategory trims the category and falls back to Uncategorized when blank.
// The second value is a field message when the category is too long.
func NormalizeCategory(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return enum.CategoryUncategorized, ""
	}
	if utf8.RuneCountInString(s) > enum.MaxCategoryLength {
		return "", "category must be at most 100 characters"
	}
	return s, ""
}

// ParsePrice parses a positive money amount with at most two decimals.
// The second value is a field message when the input is not acceptable.
func ParsePrice(s string) (decimal.Decimal, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, "price is required"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, "price must be a decimal number"
	}
	if !d.IsPositive() {
		return decimal.Zero, "price must be greater than 0"
	}
	if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
		return decimal.Zero, "price must have at most 2 decimal places"
	}
	if d.GreaterThan(maxMenuPrice) {
		return decimal.Zero, "price is too large"
	}
	return d, ""
}
