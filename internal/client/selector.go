package client

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/geo"
)

// ErrNoBranchSelected is returned by anything that needs a bound branch before one is chosen.
var ErrNoBranchSelected = errors.New("no branch selected")

// SelectionPath is where menu and order pages send the user when no branch is bound.
const SelectionPath = "/"

// DefaultLocateTimeout bounds the position lookup before ranking.
const DefaultLocateTimeout = 10 * time.Second

// BranchLister lists active branches.
// Satisfied by *API; narrow interface for testability.
type BranchLister interface {
	ListBranches(ctx context.Context, search string, at *geo.Point) ([]Branch, error)
}

// Selector resolves which branch a device orders from.
type Selector struct {
	branches      BranchLister
	locator       Locator
	session       *Session
	locateTimeout time.Duration
	log           *zap.Logger
}

func NewSelector(branches BranchLister, locator Locator, session *Session, log *zap.Logger) *Selector {
	if log == nil {
		log = zap.NewNop()
	}
	if locator == nil {
		locator = StaticLocator{}
	}
	return &Selector{
		branches:      branches,
		locator:       locator,
		session:       session,
		locateTimeout: DefaultLocateTimeout,
		log:           log,
	}
}

// ResolveAndRank returns the active branches nearest first. When the device
// position is unavailable the list comes back alphabetical with no distances.
func (s *Selector) ResolveAndRank(ctx context.Context) ([]geo.Ranked[Branch], error) {
	branches, err := s.branches.ListBranches(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(branches, func(i, j int) bool {
		return strings.ToLower(branches[i].Name) < strings.ToLower(branches[j].Name)
	})

	lctx, cancel := context.WithTimeout(ctx, s.locateTimeout)
	defer cancel()
	p, err := s.locator.Locate(lctx, LocateOptions{HighAccuracy: true})
	if err != nil {
		s.log.Debug("location unavailable, listing alphabetically", zap.Error(err))
		return geo.Rank(nil, branches, Branch.Location), nil
	}

	ranked := geo.Rank(&p, branches, Branch.Location)
	for i := range ranked {
		ranked[i].Item.DistanceKm = ranked[i].DistanceKm
	}
	return ranked, nil
}

// Select binds the session to branchID, replacing any earlier choice.
func (s *Selector) Select(branchID uuid.UUID) error {
	if branchID == uuid.Nil {
		return ErrNoBranchSelected
	}
	return s.session.SetBranch(branchID)
}

func (s *Selector) Clear() error {
	return s.session.ClearBranch()
}

// RequireSelection returns the bound branch or ErrNoBranchSelected; callers
// redirect to SelectionPath on the error.
func (s *Selector) RequireSelection() (uuid.UUID, error) {
	id := s.session.BranchID()
	if id == uuid.Nil {
		return uuid.Nil, ErrNoBranchSelected
	}
	return id, nil
}
