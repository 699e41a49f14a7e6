package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragle/driver-recon/internal/model"
)

func TestProfiles(t *testing.T) {
	s := Strict()
	require.NoError(t, s.Validate())
	assert.Equal(t, 25, s.MaxMalformedRows)
	assert.Equal(t, "07:30", s.LateStart.String())
	assert.Equal(t, "16:00", s.EarlyEnd.String())
	assert.Equal(t, 200.0, s.Geofence.RadiusMeters)

	p := Permissive()
	require.NoError(t, p.Validate())
	assert.Equal(t, Unlimited, p.MaxMalformedRows)
	assert.Equal(t, 500.0, p.Geofence.RadiusMeters)
	assert.Equal(t, s.LateStart, p.LateStart)
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{
		"":             NameStrict,
		"strict":       NameStrict,
		" Permissive ": NamePermissive,
	} {
		s, err := ByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, s.Name)
	}

	_, err := ByName("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown strictness profile "dev"`)
}

func TestWith(t *testing.T) {
	zero := 0
	s, err := Strict().With(Overrides{
		LateStart:        "08:00",
		EarlyEnd:         "15:30",
		MaxMalformedRows: &zero,
		RadiusMeters:     350,
	})
	require.NoError(t, err)
	assert.Equal(t, model.MustTimeOfDay("08:00"), s.LateStart)
	assert.Equal(t, model.MustTimeOfDay("15:30"), s.EarlyEnd)
	assert.Equal(t, 0, s.MaxMalformedRows)
	assert.Equal(t, 350.0, s.Geofence.RadiusMeters)
	assert.Equal(t, 0.7, s.Geofence.BoundaryConfidence)

	neg := -10
	s, err = Strict().With(Overrides{MaxMalformedRows: &neg})
	require.NoError(t, err)
	assert.Equal(t, Unlimited, s.MaxMalformedRows)

	s, err = Permissive().With(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, Permissive(), s)
}

func TestWith_Invalid(t *testing.T) {
	_, err := Strict().With(Overrides{LateStart: "7.30"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "late start")

	_, err = Strict().With(Overrides{EarlyEnd: "25:00"})
	require.Error(t, err)

	_, err = Strict().With(Overrides{RadiusMeters: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geofence")
}
