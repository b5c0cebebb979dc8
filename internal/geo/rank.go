// Package geo ranks branches by great-circle distance from a customer.
package geo

import (
	"math"
	"sort"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64
	Lon float64
}

// NewPoint returns a point for optional coordinates, nil unless both are present and finite.
func NewPoint(lat, lon *float64) *Point {
	if lat == nil || lon == nil {
		return nil
	}
	p := Point{Lat: *lat, Lon: *lon}
	if !p.valid() {
		return nil
	}
	return &p
}

func (p Point) valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		!math.IsInf(p.Lat, 0) && !math.IsInf(p.Lon, 0)
}

// DistanceKm returns the haversine distance between a and b.
func DistanceKm(a, b Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Ranked pairs an item with its distance from the user. DistanceKm is nil when unknown.
type Ranked[T any] struct {
	Item       T
	DistanceKm *float64
}

// Rank sorts items by distance from user, nearest first.
// Items without a location keep their input order after every located item.
// A nil user leaves the input order untouched.
func Rank[T any](user *Point, items []T, locate func(T) *Point) []Ranked[T] {
	out := make([]Ranked[T], len(items))
	for i, it := range items {
		out[i] = Ranked[T]{Item: it}
		if user == nil || !user.valid() {
			continue
		}
		if p := locate(it); p != nil && p.valid() {
			d := DistanceKm(*user, *p)
			out[i].DistanceKm = &d
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].DistanceKm, out[j].DistanceKm
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return out
}
