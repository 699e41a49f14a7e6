package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ragle/driver-recon/internal/model"
)

// Output formats.
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatManifest = "manifest"
)

// DefaultFormats is every output format.
var DefaultFormats = []string{FormatJSON, FormatCSV, FormatManifest}

// File names written per date.
const (
	IdentitiesJSON = "identities.json"
	IdentitiesCSV  = "identities.csv"
	ReportJSON     = "report.json"
	ManifestMD     = "manifest.md"
	ManifestYAML   = "manifest.yaml"
)

// identityColumns defines the ordered flattened identity CSV columns.
var identityColumns = []string{
	"canonical_name",
	"display_name",
	"display_source",
	"assigned_asset_id",
	"assigned_assets",
	"observed_asset_id",
	"observed_assets",
	"asset_mismatch",
	"assigned_job_site",
	"job_sites",
	"observed_locations",
	"key_on_time",
	"key_off_time",
	"time_in",
	"time_out",
	"sources",
	"verification_tier",
	"geofence_confidence",
	"classification",
	"reason",
	"exclusion_reason",
	"exclusion_detail",
}

// Write stores the requested formats under dir/<date>/ and returns the
// paths written. Unknown formats are an error.
func Write(dir string, rep *Report, man *Manifest, formats []string) ([]string, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	out := filepath.Join(dir, rep.Summary.Date)
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create dir %s", out)
	}

	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatJSON:
			p := filepath.Join(out, IdentitiesJSON)
			if err := writeJSON(p, rep.Identities()); err != nil {
				return written, err
			}
			written = append(written, p)

			p = filepath.Join(out, ReportJSON)
			if err := writeJSON(p, rep); err != nil {
				return written, err
			}
			written = append(written, p)

		case FormatCSV:
			p := filepath.Join(out, IdentitiesCSV)
			if err := WriteIdentitiesCSV(p, rep.Identities()); err != nil {
				return written, err
			}
			written = append(written, p)

		case FormatManifest:
			p := filepath.Join(out, ManifestMD)
			if err := os.WriteFile(p, []byte(man.Markdown()), 0o644); err != nil {
				return written, eris.Wrap(err, "report: write manifest")
			}
			written = append(written, p)

			p = filepath.Join(out, ManifestYAML)
			data, err := yaml.Marshal(man)
			if err != nil {
				return written, eris.Wrap(err, "report: marshal manifest")
			}
			if err := os.WriteFile(p, data, 0o644); err != nil {
				return written, eris.Wrap(err, "report: write manifest")
			}
			written = append(written, p)

		default:
			return written, eris.Errorf("report: unknown output format %q", f)
		}
	}
	return written, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "report: marshal %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", filepath.Base(path))
	}
	return nil
}

// WriteIdentitiesCSV writes the flattened identity dataset.
func WriteIdentitiesCSV(path string, identities []*model.DriverIdentity) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create csv")
	}
	if err := encodeIdentities(f, identities); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "report: close %s", filepath.Base(path))
	}
	return nil
}

func encodeIdentities(out io.Writer, identities []*model.DriverIdentity) error {
	w := csv.NewWriter(out)
	if err := w.Write(identityColumns); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, d := range identities {
		if err := w.Write(identityRow(d)); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "report: flush csv")
	}
	return nil
}

// identityRow maps a DriverIdentity to a CSV row.
func identityRow(d *model.DriverIdentity) []string {
	locs := make([]string, 0, len(d.ObservedLocations))
	for _, o := range d.ObservedLocations {
		if o.Description != "" {
			locs = append(locs, o.Description)
		}
	}

	conf := ""
	if d.GeofenceConfidence != nil {
		conf = strconv.FormatFloat(*d.GeofenceConfidence, 'f', 3, 64)
	}

	return []string{
		d.CanonicalName,                          // canonical_name
		d.DisplayName,                            // display_name
		string(d.DisplaySource),                  // display_source
		d.AssignedAssetID,                        // assigned_asset_id
		joinList(d.AssignedAssets),               // assigned_assets
		d.ObservedAssetID,                        // observed_asset_id
		joinList(d.ObservedAssets),               // observed_assets
		strconv.FormatBool(d.HasAssetMismatch()), // asset_mismatch
		d.AssignedJobSite,                        // assigned_job_site
		joinList(d.JobSites),                     // job_sites
		strings.Join(locs, "; "),                 // observed_locations
		clockCell(d.KeyOnTime),                   // key_on_time
		clockCell(d.KeyOffTime),                  // key_off_time
		clockCell(d.TimeIn),                      // time_in
		clockCell(d.TimeOut),                     // time_out
		d.Sources.String(),                       // sources
		string(d.VerificationTier),               // verification_tier
		conf,                                     // geofence_confidence
		string(d.Classification),                 // classification
		d.Reason,                                 // reason
		d.ExclusionReason,                        // exclusion_reason
		d.ExclusionDetail,                        // exclusion_detail
	}
}

func clockCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateTime)
}
