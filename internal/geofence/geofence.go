// Package geofence validates observed coordinates against job-site circles.
package geofence

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371000.0

// Profile sets the geofence radius and how confidence decays with distance.
type Profile struct {
	// RadiusMeters applies to sites without their own radius.
	RadiusMeters float64 `json:"radius_m" yaml:"radius_m"`
	// BoundaryConfidence is the confidence exactly at the radius.
	BoundaryConfidence float64 `json:"boundary_confidence" yaml:"boundary_confidence"`
	// Tolerance is the multiple of the radius at which confidence reaches 0.
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
}

// Validate checks the profile is usable.
func (p Profile) Validate() error {
	if p.RadiusMeters <= 0 {
		return eris.Errorf("geofence: radius must be positive, got %v", p.RadiusMeters)
	}
	if p.BoundaryConfidence < 0 || p.BoundaryConfidence > 1 {
		return eris.Errorf("geofence: boundary confidence must be in [0,1], got %v", p.BoundaryConfidence)
	}
	if p.Tolerance < 1 {
		return eris.Errorf("geofence: tolerance must be at least 1, got %v", p.Tolerance)
	}
	return nil
}

// Check is the outcome of testing one coordinate against one site.
type Check struct {
	DistanceMeters float64 `json:"distance_m"`
	RadiusMeters   float64 `json:"radius_m"`
	Confidence     float64 `json:"confidence"`
	Valid          bool    `json:"valid"`
}

// Evaluate tests obs against site. siteRadius overrides the profile radius
// when positive. Valid iff the distance is within the radius; confidence
// falls linearly from 1 at the center to BoundaryConfidence at the radius,
// then to 0 at Tolerance times the radius.
func (p Profile) Evaluate(obs, site *geom.Point, siteRadius float64) Check {
	r := p.RadiusMeters
	if siteRadius > 0 {
		r = siteRadius
	}
	d := HaversineMeters(obs, site)
	return Check{
		DistanceMeters: d,
		RadiusMeters:   r,
		Confidence:     p.confidence(d, r),
		Valid:          d <= r,
	}
}

func (p Profile) confidence(d, r float64) float64 {
	b := p.BoundaryConfidence
	if d <= r {
		return 1 - (1-b)*d/r
	}
	outer := p.Tolerance * r
	if d >= outer || outer <= r {
		return 0
	}
	return b * (outer - d) / (outer - r)
}

// HaversineMeters is the great-circle distance between two points given as
// X=longitude, Y=latitude in degrees.
func HaversineMeters(a, b *geom.Point) float64 {
	lat1, lon1 := a.Y()*math.Pi/180, a.X()*math.Pi/180
	lat2, lon2 := b.Y()*math.Pi/180, b.X()*math.Pi/180
	dLat := lat2 - lat1
	dLon := lon2 - lon1

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}
