package client

import (
	"context"
	"errors"

	"github.com/branchline/api/internal/geo"
)

// ErrLocationUnavailable means the device could not or would not report a position.
var ErrLocationUnavailable = errors.New("location unavailable")

type LocateOptions struct {
	HighAccuracy bool
}

// Locator reports the device position.
type Locator interface {
	Locate(ctx context.Context, opts LocateOptions) (geo.Point, error)
}

type LocatorFunc func(ctx context.Context, opts LocateOptions) (geo.Point, error)

func (f LocatorFunc) Locate(ctx context.Context, opts LocateOptions) (geo.Point, error) {
	return f(ctx, opts)
}

// StaticLocator answers with a fixed point, typically from flags or config.
// A nil Point always fails with ErrLocationUnavailable.
type StaticLocator struct {
	Point *geo.Point
}

func (s StaticLocator) Locate(ctx context.Context, _ LocateOptions) (geo.Point, error) {
	if err := ctx.Err(); err != nil {
		return geo.Point{}, err
	}
	if s.Point == nil {
		return geo.Point{}, ErrLocationUnavailable
	}
	return *s.Point, nil
}
