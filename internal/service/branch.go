package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/geo"
)

const deviceIDConstraint = "branches_device_id_key"

// BranchStore defines the DB methods needed by the branch registry.
// Satisfied by *database.Queries; narrow interface for testability.
type BranchStore interface {
	CreateBranch(ctx context.Context, arg database.CreateBranchParams) (database.Branch, error)
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
	GetBranchByDeviceID(ctx context.Context, deviceID string) (database.Branch, error)
	UpdateBranch(ctx context.Context, arg database.UpdateBranchParams) (database.Branch, error)
	SetBranchActive(ctx context.Context, arg database.SetBranchActiveParams) (database.Branch, error)
	ListActiveBranches(ctx context.Context, search pgtype.Text) ([]database.Branch, error)
	ListBranchesWithCounts(ctx context.Context, arg database.ListBranchesWithCountsParams) ([]database.ListBranchesWithCountsRow, error)
	ListMenuItemsByBranch(ctx context.Context, arg database.ListMenuItemsByBranchParams) ([]database.MenuItem, error)
}

type CreateBranchRequest struct {
	Name        string
	Description *string
	Address     *string
	Latitude    *float64
	Longitude   *float64
	DeviceID    string
	IsActive    *bool // defaults to true
}

// UpdateBranchRequest is a partial update; nil fields keep their value.
// ClearLocation removes both coordinates.
type UpdateBranchRequest struct {
	Name          *string
	Description   *string
	Address       *string
	Latitude      *float64
	Longitude     *float64
	ClearLocation bool
	DeviceID      *string
	IsActive      *bool
}

type ListBranchesFilter struct {
	ActiveOnly bool
	Search     string
}

// MenuCategory is one category of a branch menu, items sorted by name.
type MenuCategory struct {
	Name  string
	Items []database.MenuItem
}

// BranchMenu is a branch with its available menu grouped by category.
type BranchMenu struct {
	Branch     database.Branch
	Categories []MenuCategory
}

type BranchService struct {
	store BranchStore
	log   *zap.Logger
}

func NewBranchService(store BranchStore, log *zap.Logger) *BranchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BranchService{store: store, log: log}
}

// Create registers a branch. The device id must not be bound to another branch.
func (s *BranchService) Create(ctx context.Context, req CreateBranchRequest) (database.Branch, error) {
	fields := map[string]string{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		fields["name"] = "name is required"
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		fields["device_id"] = "device_id is required"
	}
	validateCoordinates(req.Latitude, req.Longitude, fields)
	if len(fields) > 0 {
		return database.Branch{}, apperr.Validation("invalid branch", fields)
	}

	if err := s.ensureDeviceFree(ctx, deviceID, uuid.Nil); err != nil {
		return database.Branch{}, err
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	branch, err := s.store.CreateBranch(ctx, database.CreateBranchParams{
		Name:        name,
		Description: textFromPtr(req.Description),
		Address:     textFromPtr(req.Address),
		Latitude:    float8FromPtr(req.Latitude),
		Longitude:   float8FromPtr(req.Longitude),
		DeviceID:    deviceID,
		IsActive:    isActive,
	})
	if err != nil {
		if apperr.IsUniqueViolation(err, deviceIDConstraint) {
			return database.Branch{}, deviceConflict(deviceID)
		}
		return database.Branch{}, apperr.FromStore(err, "create branch", "branch not found")
	}
	s.log.Info("branch created", zap.String("branch_id", branch.ID.String()), zap.String("device_id", deviceID))
	return branch, nil
}

// Update applies a partial update. Rebinding the device re-checks uniqueness.
func (s *BranchService) Update(ctx context.Context, id uuid.UUID, req UpdateBranchRequest) (database.Branch, error) {
	current, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return database.Branch{}, apperr.FromStore(err, "get branch", "branch not found")
	}

	params := database.UpdateBranchParams{
		ID:          current.ID,
		Name:        current.Name,
		Description: current.Description,
		Address:     current.Address,
		Latitude:    current.Latitude,
		Longitude:   current.Longitude,
		DeviceID:    current.DeviceID,
		IsActive:    current.IsActive,
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
	if req.Address != nil {
		params.Address = textFromPtr(req.Address)
	}
	if req.ClearLocation {
		params.Latitude = pgtype.Float8{}
		params.Longitude = pgtype.Float8{}
	} else {
		validateCoordinates(req.Latitude, req.Longitude, fields)
		if req.Latitude != nil {
			params.Latitude = float8FromPtr(req.Latitude)
		}
		if req.Longitude != nil {
			params.Longitude = float8FromPtr(req.Longitude)
		}
	}
	if req.DeviceID != nil {
		params.DeviceID = strings.TrimSpace(*req.DeviceID)
		if params.DeviceID == "" {
			fields["device_id"] = "device_id cannot be empty"
		}
	}
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}
	if len(fields) > 0 {
		return database.Branch{}, apperr.Validation("invalid branch", fields)
	}

	if params.DeviceID != current.DeviceID {
		if err := s.ensureDeviceFree(ctx, params.DeviceID, current.ID); err != nil {
			return database.Branch{}, err
		}
	}

	branch, err := s.store.UpdateBranch(ctx, params)
	if err != nil {
		if apperr.IsUniqueViolation(err, deviceIDConstraint) {
			return database.Branch{}, deviceConflict(params.DeviceID)
		}
		return database.Branch{}, apperr.FromStore(err, "update branch", "branch not found")
	}
	if branch.DeviceID != current.DeviceID {
		s.log.Info("branch device rebound",
			zap.String("branch_id", branch.ID.String()),
			zap.String("from", current.DeviceID),
			zap.String("to", branch.DeviceID),
		)
	}
	return branch, nil
}

// Deactivate hides the branch from the storefront. Orders and menu items are untouched.
// Deactivating an inactive branch succeeds.
func (s *BranchService) Deactivate(ctx context.Context, id uuid.UUID) (database.Branch, error) {
	return s.setActive(ctx, id, false)
}

func (s *BranchService) Activate(ctx context.Context, id uuid.UUID) (database.Branch, error) {
	return s.setActive(ctx, id, true)
}

func (s *BranchService) setActive(ctx context.Context, id uuid.UUID, active bool) (database.Branch, error) {
	branch, err := s.store.SetBranchActive(ctx, database.SetBranchActiveParams{ID: id, IsActive: active})
	if err != nil {
		return database.Branch{}, apperr.FromStore(err, "set branch active", "branch not found")
	}
	return branch, nil
}

// ListActive returns active branches sorted by name, filtered by a case-insensitive
// substring over name, description and address.
func (s *BranchService) ListActive(ctx context.Context, search string) ([]database.Branch, error) {
	branches, err := s.store.ListActiveBranches(ctx, searchText(search))
	if err != nil {
		return nil, apperr.FromStore(err, "list active branches", "branch not found")
	}
	return branches, nil
}

// ListRanked returns active branches ranked by distance from user (nil keeps name order).
func (s *BranchService) ListRanked(ctx context.Context, search string, user *geo.Point) ([]geo.Ranked[database.Branch], error) {
	branches, err := s.ListActive(ctx, search)
	if err != nil {
		return nil, err
	}
	return geo.Rank(user, branches, BranchLocation), nil
}

// List returns branches with order and menu item counts for the admin list.
func (s *BranchService) List(ctx context.Context, f ListBranchesFilter) ([]database.ListBranchesWithCountsRow, error) {
	rows, err := s.store.ListBranchesWithCounts(ctx, database.ListBranchesWithCountsParams{
		ActiveOnly: f.ActiveOnly,
		Search:     searchText(f.Search),
	})
	if err != nil {
		return nil, apperr.FromStore(err, "list branches", "branch not found")
	}
	return rows, nil
}

func (s *BranchService) Get(ctx context.Context, id uuid.UUID) (database.Branch, error) {
	branch, err := s.store.GetBranch(ctx, id)
	if err != nil {
		return database.Branch{}, apperr.FromStore(err, "get branch", "branch not found")
	}
	return branch, nil
}

// GetByDeviceID resolves the branch a device is bound to.
func (s *BranchService) GetByDeviceID(ctx context.Context, deviceID string) (database.Branch, error) {
	branch, err := s.store.GetBranchByDeviceID(ctx, strings.TrimSpace(deviceID))
	if err != nil {
		return database.Branch{}, apperr.FromStore(err, "get branch by device", "no branch is bound to this device")
	}
	return branch, nil
}

// GetWithMenu returns the branch and its available items grouped by category.
func (s *BranchService) GetWithMenu(ctx context.Context, id uuid.UUID) (*BranchMenu, error) {
	branch, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListMenuItemsByBranch(ctx, database.ListMenuItemsByBranchParams{
		BranchID:      id,
		AvailableOnly: true,
	})
	if err != nil {
		return nil, apperr.FromStore(err, "list menu items", "branch not found")
	}
	return &BranchMenu{Branch: branch, Categories: GroupByCategory(items)}, nil
}

// GroupByCategory groups items by category. Categories and items are sorted by name.
func GroupByCategory(items []database.MenuItem) []MenuCategory {
	byName := map[string][]database.MenuItem{}
	for _, it := range items {
		byName[it.Category] = append(byName[it.Category], it)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]MenuCategory, 0, len(names))
	for _, name := range names {
		group := byName[name]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Name < group[j].Name })
		out = append(out, MenuCategory{Name: name, Items: group})
	}
	return out
}

// BranchLocation returns the branch coordinates, nil when either is missing.
func BranchLocation(b database.Branch) *geo.Point {
	if !b.Latitude.Valid || !b.Longitude.Valid {
		return nil
	}
	return geo.NewPoint(&b.Latitude.Float64, &b.Longitude.Float64)
}

// --- Helpers ---

func (s *BranchService) ensureDeviceFree(ctx context.Context, deviceID string, self uuid.UUID) error {
	existing, err := s.store.GetBranchByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return apperr.FromStore(err, "check device id", "branch not found")
	}
	if existing.ID != self {
		return deviceConflict(deviceID)
	}
	return nil
}

func deviceConflict(deviceID string) error {
	return apperr.Conflict(fmt.Sprintf("device %q is already bound to another branch", deviceID))
}

func validateCoordinates(lat, lon *float64, fields map[string]string) {
	if (lat == nil) != (lon == nil) {
		fields["location"] = "latitude and longitude must be provided together"
		return
	}
	if lat != nil && (math.IsNaN(*lat) || *lat < -90 || *lat > 90) {
		fields["latitude"] = "latitude must be between -90 and 90"
	}
	if lon != nil && (math.IsNaN(*lon) || *lon < -180 || *lon > 180) {
		fields["longitude"] = "longitude must be between -180 and 180"
	}
}

func searchText(s string) pgtype.Text {
	s = strings.TrimSpace(s)
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func textFromPtr(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}

func float8FromPtr(f *float64) pgtype.Float8 {
	if f == nil {
		return pgtype.Float8{}
	}
	return pgtype.Float8{Float64: *f, Valid: true}
}
