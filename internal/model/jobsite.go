package model

import "github.com/twpayne/go-geom"

// JobSite is a named work location, optionally with a geofence.
type JobSite struct {
	Name         string   `json:"name" yaml:"name"`
	Latitude     *float64 `json:"latitude,omitempty" yaml:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty" yaml:"longitude,omitempty"`
	RadiusMeters float64  `json:"radius_meters,omitempty" yaml:"radius_meters,omitempty"`
}

// Point returns the site coordinate (X=longitude, Y=latitude), or nil
// when the site has no coordinates.
func (j JobSite) Point() *geom.Point {
	return pointOf(j.Latitude, j.Longitude)
}

func pointOf(lat, lon *float64) *geom.Point {
	if lat == nil || lon == nil {
		return nil
	}
	return geom.NewPointFlat(geom.XY, []float64{*lon, *lat}).SetSRID(4326)
}
