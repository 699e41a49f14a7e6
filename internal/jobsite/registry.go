// Package jobsite keeps the known job sites and their geofence coordinates.
package jobsite

import (
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ragle/driver-recon/internal/model"
)

// File is the on-disk registry layout.
type File struct {
	JobSites []model.JobSite `yaml:"job_sites"`
}

// Registry maps job-site names (case- and space-insensitive) to sites.
type Registry struct {
	sites map[string]model.JobSite
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{sites: make(map[string]model.JobSite)}
}

// Load reads a YAML registry file. An empty path yields an empty registry.
func Load(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "jobsite: read %s", path)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "jobsite: parse %s", path)
	}

	for i, s := range f.JobSites {
		if strings.TrimSpace(s.Name) == "" {
			return nil, eris.Errorf("jobsite: entry %d in %s has no name", i+1, path)
		}
		if (s.Latitude == nil) != (s.Longitude == nil) {
			return nil, eris.Errorf("jobsite: %q needs both latitude and longitude", s.Name)
		}
		if s.RadiusMeters < 0 {
			return nil, eris.Errorf("jobsite: %q has negative radius", s.Name)
		}
		r.Add(s)
	}
	return r, nil
}

// Add registers site. An existing entry keeps its values and only gains
// coordinates or a radius it lacked. Reports whether anything changed.
func (r *Registry) Add(site model.JobSite) bool {
	k := key(site.Name)
	if k == "" {
		return false
	}
	cur, ok := r.sites[k]
	if !ok {
		r.sites[k] = site
		return true
	}

	changed := false
	if cur.Point() == nil && site.Point() != nil {
		cur.Latitude, cur.Longitude = site.Latitude, site.Longitude
		changed = true
	}
	if cur.RadiusMeters == 0 && site.RadiusMeters > 0 {
		cur.RadiusMeters = site.RadiusMeters
		changed = true
	}
	r.sites[k] = cur
	return changed
}

// Lookup finds a site by name.
func (r *Registry) Lookup(name string) (model.JobSite, bool) {
	s, ok := r.sites[key(name)]
	return s, ok
}

// Sites returns every site ordered by name.
func (r *Registry) Sites() []model.JobSite {
	out := make([]model.JobSite, 0, len(r.sites))
	for _, s := range r.sites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i].Name) < key(out[j].Name) })
	return out
}

// Len is the number of registered sites.
func (r *Registry) Len() int { return len(r.sites) }

func key(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
