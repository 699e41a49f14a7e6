// Package classify assigns each driver's attendance outcome for the day.
package classify

import (
	"fmt"
	"strings"

	"github.com/ragle/driver-recon/internal/jobsite"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/policy"
)

// Reasons for the NOT_ON_JOB and UNKNOWN outcomes.
const (
	ReasonNoTelematics  = "no telematics data"
	ReasonAssetMismatch = "asset mismatch"
	ReasonNoJobSite     = "no job site assignment"
	ReasonNotAtJobSite  = "not at assigned job site"
	ReasonNoEndTime     = "no end time recorded"
	ReasonOnTime        = "on time"
)

// Outcome is the result of classifying one identity.
type Outcome struct {
	Classification     model.Classification
	Reason             string
	GeofenceConfidence *float64
}

// Classifier applies the ordered attendance rules. It holds no mutable
// state, so the same identity always yields the same outcome.
type Classifier struct {
	policy policy.Strictness
	sites  *jobsite.Registry
}

// New creates a Classifier. sites may be nil when no coordinates are known.
func New(p policy.Strictness, sites *jobsite.Registry) *Classifier {
	if sites == nil {
		sites = jobsite.New()
	}
	return &Classifier{policy: p, sites: sites}
}

// Classify evaluates the rules in order; the first match wins.
func (c *Classifier) Classify(d *model.DriverIdentity) Outcome {
	if !d.HasTelematics() {
		return Outcome{Classification: model.ClassNotOnJob, Reason: ReasonNoTelematics}
	}
	if d.HasAssetMismatch() {
		return Outcome{Classification: model.ClassNotOnJob, Reason: ReasonAssetMismatch}
	}
	if d.AssignedJobSite == "" {
		return Outcome{Classification: model.ClassNotOnJob, Reason: ReasonNoJobSite}
	}

	at, confidence := c.atJobSite(d)
	if !at {
		return Outcome{Classification: model.ClassNotOnJob, Reason: ReasonNotAtJobSite, GeofenceConfidence: confidence}
	}

	out := Outcome{GeofenceConfidence: confidence}
	if start := *d.StartTime(); c.policy.LateStart.IsAfter(start) {
		out.Classification = model.ClassLate
		out.Reason = fmt.Sprintf("late start: %s after %s", model.ClockString(start), c.policy.LateStart)
		return out
	}

	end := d.EndTime()
	if end == nil {
		out.Classification = model.ClassUnknown
		out.Reason = ReasonNoEndTime
		return out
	}
	if stop := model.ClockOf(*end); stop < c.policy.EarlyEnd {
		out.Classification = model.ClassEarlyEnd
		out.Reason = fmt.Sprintf("early end: %s before %s", stop, c.policy.EarlyEnd)
		return out
	}

	out.Classification = model.ClassOnTime
	out.Reason = ReasonOnTime
	return out
}

// Apply classifies d and stores the outcome on it.
func (c *Classifier) Apply(d *model.DriverIdentity) {
	out := c.Classify(d)
	d.Classification = out.Classification
	d.Reason = out.Reason
	d.GeofenceConfidence = out.GeofenceConfidence
}

// atJobSite reports whether any observed location matches any assigned job
// site. Observations without a description or coordinate are ignored; with
// none left the check passes. A geofence decides when both the observation
// and the site have coordinates, else a case-insensitive substring match on
// the description. confidence is the best geofence confidence seen, or nil
// when no geofence applied.
func (c *Classifier) atJobSite(d *model.DriverIdentity) (at bool, confidence *float64) {
	sites := make([]model.JobSite, 0, len(d.JobSites))
	for _, name := range d.JobSites {
		s, ok := c.sites.Lookup(name)
		if !ok {
			s = model.JobSite{Name: name}
		}
		sites = append(sites, s)
	}

	observed := 0
	for _, obs := range d.ObservedLocations {
		pt := obs.Point()
		if obs.Description == "" && pt == nil {
			continue
		}
		observed++

		for _, site := range sites {
			if sp := site.Point(); pt != nil && sp != nil {
				chk := c.policy.Geofence.Evaluate(pt, sp, site.RadiusMeters)
				if confidence == nil || chk.Confidence > *confidence {
					v := chk.Confidence
					confidence = &v
				}
				if chk.Valid {
					at = true
				}
				continue
			}
			if obs.Description != "" &&
				strings.Contains(strings.ToLower(obs.Description), strings.ToLower(site.Name)) {
				at = true
			}
		}
	}
	return at || observed == 0, confidence
}
