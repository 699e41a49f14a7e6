// Package policy holds the strictness profiles that parameterize extraction,
// classification and geofencing.
package policy

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ragle/driver-recon/internal/geofence"
	"github.com/ragle/driver-recon/internal/model"
)

// Profile names.
const (
	NameStrict     = "strict"
	NamePermissive = "permissive"
)

// Unlimited disables the malformed-row budget.
const Unlimited = -1

// Strictness is the complete set of tunables for one run.
type Strictness struct {
	Name             string           `json:"name" yaml:"name"`
	MaxMalformedRows int              `json:"max_malformed_rows" yaml:"max_malformed_rows"` // negative is unlimited
	LateStart        model.TimeOfDay  `json:"late_start" yaml:"late_start"`
	EarlyEnd         model.TimeOfDay  `json:"early_end" yaml:"early_end"`
	Geofence         geofence.Profile `json:"geofence" yaml:"geofence"`
}

// Strict is the default profile: a 25-row error budget and a tight 200 m
// geofence.
func Strict() Strictness {
	return Strictness{
		Name:             NameStrict,
		MaxMalformedRows: 25,
		LateStart:        model.MustTimeOfDay("07:30"),
		EarlyEnd:         model.MustTimeOfDay("16:00"),
		Geofence: geofence.Profile{
			RadiusMeters:       200,
			BoundaryConfidence: 0.7,
			Tolerance:          1.5,
		},
	}
}

// Permissive never aborts on malformed rows and uses a 500 m geofence.
func Permissive() Strictness {
	return Strictness{
		Name:             NamePermissive,
		MaxMalformedRows: Unlimited,
		LateStart:        model.MustTimeOfDay("07:30"),
		EarlyEnd:         model.MustTimeOfDay("16:00"),
		Geofence: geofence.Profile{
			RadiusMeters:       500,
			BoundaryConfidence: 0.5,
			Tolerance:          2.0,
		},
	}
}

// ByName returns the named profile; "" selects Strict.
func ByName(name string) (Strictness, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameStrict:
		return Strict(), nil
	case NamePermissive:
		return Permissive(), nil
	default:
		return Strictness{}, eris.Errorf("policy: unknown strictness profile %q (want %s or %s)",
			name, NameStrict, NamePermissive)
	}
}

// Overrides adjusts a profile. Zero values keep the profile's setting.
type Overrides struct {
	LateStart        string
	EarlyEnd         string
	MaxMalformedRows *int
	RadiusMeters     float64
}

// With applies o and validates the result.
func (s Strictness) With(o Overrides) (Strictness, error) {
	if o.LateStart != "" {
		t, err := model.ParseTimeOfDay(o.LateStart)
		if err != nil {
			return s, eris.Wrap(err, "policy: late start")
		}
		s.LateStart = t
	}
	if o.EarlyEnd != "" {
		t, err := model.ParseTimeOfDay(o.EarlyEnd)
		if err != nil {
			return s, eris.Wrap(err, "policy: early end")
		}
		s.EarlyEnd = t
	}
	if o.MaxMalformedRows != nil {
		s.MaxMalformedRows = *o.MaxMalformedRows
		if s.MaxMalformedRows < 0 {
			s.MaxMalformedRows = Unlimited
		}
	}
	if o.RadiusMeters != 0 {
		s.Geofence.RadiusMeters = o.RadiusMeters
	}
	return s, s.Validate()
}

// Validate checks the thresholds and geofence profile.
func (s Strictness) Validate() error {
	if s.LateStart < 0 || s.LateStart >= 24*60 || s.EarlyEnd < 0 || s.EarlyEnd >= 24*60 {
		return eris.New("policy: thresholds must be within the day")
	}
	if err := s.Geofence.Validate(); err != nil {
		return eris.Wrap(err, "policy: geofence")
	}
	return nil
}
