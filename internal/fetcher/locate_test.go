package fetcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var may16 = time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC)

func TestDatedName(t *testing.T) {
	assert.Equal(t, "DrivingHistory_20250516.csv", DatedName("DrivingHistory_%s.csv", may16))
	assert.Equal(t, "static.csv", DatedName("static.csv", may16))
}

func TestLocateDated_Exact(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, "DrivingHistory_20250516.csv")
	require.NoError(t, writeTestFile(want, "x"))
	require.NoError(t, writeTestFile(filepath.Join(dir, "DrivingHistory_20250517.csv"), "x"))

	got, ok, err := LocateDated(dir, "DrivingHistory_%s.csv", may16)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLocateDated_FallbackScan(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "may")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, writeTestFile(filepath.Join(sub, "ActivityDetail 05-16-2025.CSV"), "x"))
	require.NoError(t, writeTestFile(filepath.Join(sub, "Driving History 05-16-2025.csv"), "x"))
	require.NoError(t, writeTestFile(filepath.Join(sub, "Driving History 05-16-2025.pdf"), "x"))

	got, ok, err := LocateDated(dir, "DrivingHistory_%s.csv", may16)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(sub, "Driving History 05-16-2025.csv"), got)

	got, ok, err = LocateDated(dir, "ActivityDetail_%s.csv", may16)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(sub, "ActivityDetail 05-16-2025.CSV"), got)
}

func TestLocateDated_NotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeTestFile(filepath.Join(dir, "DrivingHistory_20250515.csv"), "x"))

	_, ok, err := LocateDated(dir, "DrivingHistory_%s.csv", may16)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = LocateDated(filepath.Join(dir, "nope"), "DrivingHistory_%s.csv", may16)
	require.NoError(t, err)
	assert.False(t, ok)
}
