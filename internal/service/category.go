package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/apperr"
	"github.com/branchline/api/internal/database"
)

// CategoryStore defines the DB methods needed for menu categories.
// Satisfied by *database.Queries; narrow interface for testability.
type CategoryStore interface {
	GetBranch(ctx context.Context, id uuid.UUID) (database.Branch, error)
	ListMenuCategories(ctx context.Context, branchID uuid.UUID) ([]database.ListMenuCategoriesRow, error)
	RenameMenuCategory(ctx context.Context, arg database.RenameMenuCategoryParams) (int64, error)
}

// CategoryService works on the free-text categories of a branch menu.
// A category exists while at least one menu item carries it.
type CategoryService struct {
	store CategoryStore
	log   *zap.Logger
}

func NewCategoryService(store CategoryStore, log *zap.Logger) *CategoryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CategoryService{store: store, log: log}
}

func (s *CategoryService) List(ctx context.Context, branchID uuid.UUID) ([]database.ListMenuCategoriesRow, error) {
	if _, err := s.store.GetBranch(ctx, branchID); err != nil {
		return nil, apperr.FromStore(err, "get branch", "branch not found")
	}
	rows, err := s.store.ListMenuCategories(ctx, branchID)
	if err != nil {
		return nil, apperr.FromStore(err, "list categories", "branch not found")
	}
	return rows, nil
}

// Rename moves every item of category from to category to. Renaming onto an
// existing category merges the two. Returns the stored name and the number of
// items moved.
func (s *CategoryService) Rename(ctx context.Context, branchID uuid.UUID, from, to string) (string, int64, error) {
	src, _ := NormalizeCategory(from)
	dst, msg := NormalizeCategory(to)
	if msg != "" {
		return "", 0, apperr.Field("name", msg)
	}
	if src == dst {
		return "", 0, apperr.Field("name", "new name matches the current name")
	}

	moved, err := s.store.RenameMenuCategory(ctx, database.RenameMenuCategoryParams{
		BranchID:    branchID,
		Category:    src,
		NewCategory: dst,
	})
	if err != nil {
		return "", 0, apperr.FromStore(err, "rename category", "category not found")
	}
	if moved == 0 {
		return "", 0, apperr.NotFound("category not found")
	}
	s.log.Info("category renamed",
		zap.String("branch_id", branchID.String()),
		zap.String("from", src),
		zap.String("to", dst),
		zap.Int64("items", moved),
	)
	return dst, moved, nil
}
