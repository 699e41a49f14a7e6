package model

import (
	"slices"
	"time"

	"github.com/twpayne/go-geom"
)

// VerificationTier grades how well independent sources corroborate an identity.
type VerificationTier string

const (
	TierHigh       VerificationTier = "HIGH"
	TierMedium     VerificationTier = "MEDIUM"
	TierLow        VerificationTier = "LOW"
	TierUnverified VerificationTier = "UNVERIFIED"
)

// Verified reports whether the tier is reported in the verified group.
func (t VerificationTier) Verified() bool {
	return t == TierHigh || t == TierMedium
}

// Classification is a driver's attendance outcome for the day.
type Classification string

const (
	ClassOnTime   Classification = "ON_TIME"
	ClassLate     Classification = "LATE"
	ClassEarlyEnd Classification = "EARLY_END"
	ClassNotOnJob Classification = "NOT_ON_JOB"
	ClassUnknown  Classification = "UNKNOWN"
)

// Classifications lists every bucket in report order.
var Classifications = []Classification{
	ClassOnTime, ClassLate, ClassEarlyEnd, ClassNotOnJob, ClassUnknown,
}

// LocationObservation is one activity-detail row for a driver.
type LocationObservation struct {
	Description string     `json:"description"`
	Arrival     *time.Time `json:"arrival,omitempty"`
	Departure   *time.Time `json:"departure,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
}

// Point returns the observation coordinate or nil.
func (o LocationObservation) Point() *geom.Point {
	return pointOf(o.Latitude, o.Longitude)
}

// AssetConflict records an observed asset that disagrees with the registry.
type AssetConflict struct {
	Assigned []string `json:"assigned"`
	Observed string   `json:"observed"`
	Source   Source   `json:"source"`
}

// DriverIdentity is the unified record for one person in one run.
// An empty string field means the value is unknown.
type DriverIdentity struct {
	CanonicalName string `json:"canonical_name"`
	DisplayName   string `json:"display_name"`
	DisplaySource Source `json:"display_source"`

	AssignedAssetID string   `json:"assigned_asset_id,omitempty"`
	AssignedAssets  []string `json:"assigned_assets,omitempty"`
	ObservedAssetID string   `json:"observed_asset_id,omitempty"`
	ObservedAssets  []string `json:"observed_assets,omitempty"`

	AssignedJobSite   string                `json:"assigned_job_site,omitempty"`
	JobSites          []string              `json:"job_sites,omitempty"`
	ObservedLocations []LocationObservation `json:"observed_locations,omitempty"`

	KeyOnTime  *time.Time `json:"key_on_time,omitempty"`
	KeyOffTime *time.Time `json:"key_off_time,omitempty"`
	TimeIn     *time.Time `json:"time_in,omitempty"`
	TimeOut    *time.Time `json:"time_out,omitempty"`

	Sources          SourceSet        `json:"sources"`
	VerificationTier VerificationTier `json:"verification_tier"`

	AssetConflicts     []AssetConflict `json:"asset_conflicts,omitempty"`
	GeofenceConfidence *float64        `json:"geofence_confidence,omitempty"`

	Classification Classification `json:"classification"`
	Reason         string         `json:"reason"`

	ExclusionReason string `json:"exclusion_reason,omitempty"`
	ExclusionDetail string `json:"exclusion_detail,omitempty"`
}

// NewDriverIdentity creates an identity first observed in src.
func NewDriverIdentity(canonical, display string, src Source) *DriverIdentity {
	d := &DriverIdentity{
		CanonicalName:  canonical,
		DisplayName:    display,
		DisplaySource:  src,
		Sources:        NewSourceSet(),
		Classification: ClassUnknown,
	}
	d.AddSource(src)
	return d
}

// AddSource records a contributing source and recomputes the tier.
func (d *DriverIdentity) AddSource(src Source) {
	if d.Sources == nil {
		d.Sources = NewSourceSet()
	}
	d.Sources.Add(src)
	d.VerificationTier = TierFor(d.Sources)
}

// OfferDisplayName replaces the display name when src outranks the current one.
func (d *DriverIdentity) OfferDisplayName(name string, src Source) {
	if name == "" {
		return
	}
	if d.DisplayName == "" || src.Priority() < d.DisplaySource.Priority() {
		d.DisplayName = name
		d.DisplaySource = src
	}
}

// AddAssignedAsset appends a registry asset, keeping the first as primary.
func (d *DriverIdentity) AddAssignedAsset(id string) {
	if id == "" || slices.Contains(d.AssignedAssets, id) {
		return
	}
	d.AssignedAssets = append(d.AssignedAssets, id)
	if d.AssignedAssetID == "" {
		d.AssignedAssetID = id
	}
}

// AddObservedAsset appends a telematics asset, keeping the first as primary.
func (d *DriverIdentity) AddObservedAsset(id string) {
	if id == "" || slices.Contains(d.ObservedAssets, id) {
		return
	}
	d.ObservedAssets = append(d.ObservedAssets, id)
	if d.ObservedAssetID == "" {
		d.ObservedAssetID = id
	}
}

// AddJobSite appends an assigned job site, keeping the first as primary.
func (d *DriverIdentity) AddJobSite(name string) {
	if name == "" || slices.Contains(d.JobSites, name) {
		return
	}
	d.JobSites = append(d.JobSites, name)
	if d.AssignedJobSite == "" {
		d.AssignedJobSite = name
	}
}

// HasAssetMismatch reports whether any recorded conflict exists.
func (d *DriverIdentity) HasAssetMismatch() bool {
	return len(d.AssetConflicts) > 0
}

// HasTelematics reports whether any start signal was observed.
func (d *DriverIdentity) HasTelematics() bool {
	return d.KeyOnTime != nil || d.TimeIn != nil
}

// StartTime is the key-on time, falling back to the first activity arrival.
func (d *DriverIdentity) StartTime() *time.Time {
	if d.KeyOnTime != nil {
		return d.KeyOnTime
	}
	return d.TimeIn
}

// EndTime is the key-off time, falling back to the last activity departure.
func (d *DriverIdentity) EndTime() *time.Time {
	if d.KeyOffTime != nil {
		return d.KeyOffTime
	}
	return d.TimeOut
}

// TierFor derives the verification tier from source membership alone.
// Identities with no workbook backing are UNVERIFIED regardless of count.
func TierFor(sources SourceSet) VerificationTier {
	switch {
	case !sources.HasWorkbook():
		return TierUnverified
	case len(sources) >= 3:
		return TierHigh
	case len(sources) == 2:
		return TierMedium
	default:
		return TierLow
	}
}
