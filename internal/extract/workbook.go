package extract

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ragle/driver-recon/internal/asset"
	"github.com/ragle/driver-recon/internal/fetcher"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/names"
	"github.com/ragle/driver-recon/internal/schema"
)

// Candidate sheet names, tried in order.
var (
	AssetListSheets = []string{"Asset List", "FLEET", "Equip Table"}
	DriverSheets    = []string{"DRIVERS", "Drivers"}
	JobSheets       = []string{"JOBS", "Jobs"}
)

var (
	assetCandidates = []schema.Candidate{
		schema.Has("equip", "id"),
		schema.Has("equip", "number"),
		schema.Has("equip", "#"),
		schema.Has("asset", "id"),
		schema.Has("asset", "number"),
		schema.Has("asset").Except("desc", "type", "class"),
		schema.Has("unit").Except("desc", "type", "price", "rate"),
		schema.Has("truck"),
		schema.Has("vehicle").Except("desc", "type"),
	}
	driverCandidates = []schema.Candidate{
		schema.Has("driver", "name"),
		schema.Has("driver").Except(" id", "#", "license", "phone"),
		schema.Has("operator").Except(" id", "#"),
		schema.Has("employee", "name"),
		schema.Has("assigned", "to"),
	}
	jobCandidates = []schema.Candidate{
		schema.Has("job", "site"),
		schema.Has("jobsite"),
		schema.Has("job").Except("#", "number", "no.", "title", "code"),
		schema.Has("project").Except("#", "number", "manager"),
		schema.Has("site"),
		schema.Has("location"),
	}
)

var assetListFields = []schema.Field{
	{Name: "asset", Required: true, Candidates: assetCandidates},
	{Name: "driver", Required: true, Candidates: driverCandidates},
	{Name: "job", Candidates: jobCandidates},
}

var driverSheetFields = []schema.Field{
	{Name: "driver", Required: true, Candidates: append([]schema.Candidate{
		schema.Has("name").Except("job", "site", "project", "equip", "asset"),
	}, driverCandidates...)},
	{Name: "asset", Candidates: assetCandidates},
	{Name: "job", Candidates: jobCandidates},
}

var jobSheetFields = []schema.Field{
	{Name: "lat", Candidates: []schema.Candidate{schema.Has("lat")}},
	{Name: "lon", Candidates: []schema.Candidate{schema.Has("lon"), schema.Has("lng")}},
	{Name: "radius", Candidates: []schema.Candidate{schema.Has("radius")}},
	{Name: "job", Required: true, Candidates: append([]schema.Candidate{
		schema.Has("job", "name"),
		schema.Has("project", "name"),
		schema.Has("site", "name"),
	}, append(jobCandidates, schema.Has("name").Except("driver", "foreman", "employee"))...)},
	{Name: "driver", Candidates: append([]schema.Candidate{
		schema.Has("foreman"),
		schema.Has("superintendent"),
	}, driverCandidates...)},
}

// WorkbookResult holds the three registry sheets of the billing workbook.
type WorkbookResult struct {
	Path      string
	AssetList *Result
	Drivers   *Result
	Jobs      *Result
}

// Results returns the sheet results in source-hierarchy order.
func (w *WorkbookResult) Results() []*Result {
	return []*Result{w.AssetList, w.Drivers, w.Jobs}
}

// Workbook extracts the Asset List, Drivers and Jobs sheets. A missing or
// unreadable workbook, or a missing sheet, degrades that source instead of
// failing. The only error returned is a blown malformed-row budget.
func Workbook(path string, opts Options) (*WorkbookResult, error) {
	out := &WorkbookResult{
		Path:      path,
		AssetList: newResult(model.SourceAssetList, path, opts),
		Drivers:   newResult(model.SourceDriversSheet, path, opts),
		Jobs:      newResult(model.SourceJobsSheet, path, opts),
	}

	if _, err := os.Stat(path); err != nil {
		for _, r := range out.Results() {
			r.degrade(missing(r.Source, path, err))
		}
		return out, nil
	}

	wb, err := fetcher.ReadWorkbook(path)
	if err != nil {
		for _, r := range out.Results() {
			r.degrade(unrecognized(r.Source, path, err))
		}
		return out, nil
	}

	sheets := []struct {
		res        *Result
		candidates []string
		fields     []schema.Field
		row        func(*Result, schema.Columns, []string, int) error
	}{
		{out.AssetList, AssetListSheets, assetListFields, assetListRow},
		{out.Drivers, DriverSheets, driverSheetFields, driverSheetRow},
		{out.Jobs, JobSheets, jobSheetFields, jobSheetRow},
	}

	for _, s := range sheets {
		if err := readSheet(wb, s.res, s.candidates, s.fields, s.row); err != nil {
			return out, err
		}
	}
	return out, nil
}

func readSheet(
	wb *fetcher.Workbook,
	res *Result,
	candidates []string,
	fields []schema.Field,
	handle func(*Result, schema.Columns, []string, int) error,
) error {
	name, ok := wb.FindSheet(candidates)
	if !ok {
		res.degrade(missing(res.Source, res.Path,
			eris.Errorf("extract: no sheet named %s", strings.Join(candidates, ", "))))
		return nil
	}
	res.Sheet = name

	rows, _ := wb.Rows(name)
	hdr, cols, err := schema.FindHeader(rows, fields, headerScan)
	if err != nil {
		res.degrade(unrecognized(res.Source, res.Path+"#"+name, err))
		return nil
	}

	for i := hdr + 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		res.Stats.Rows++
		if err := handle(res, cols, rows[i], i); err != nil {
			return err
		}
	}
	res.summarize()
	return nil
}

func assetListRow(res *Result, cols schema.Columns, row []string, _ int) error {
	id := asset.NormalizeID(cols.Get(row, "asset"))
	if id == "" {
		res.Stats.Skipped++
		return nil
	}
	if asset.IsTrailer(id) {
		res.trailer(id)
		return nil
	}

	raw := cols.Get(row, "driver")
	canonical := names.Normalize(raw)
	if canonical == "" {
		res.Stats.Skipped++
		return nil
	}

	rec := res.record(canonical, raw)
	rec.addAsset(id)
	rec.addJobSite(jobName(cols.Get(row, "job")))
	return nil
}

func driverSheetRow(res *Result, cols schema.Columns, row []string, _ int) error {
	raw := cols.Get(row, "driver")
	canonical := names.Normalize(raw)
	if canonical == "" {
		res.Stats.Skipped++
		return nil
	}

	rec := res.record(canonical, raw)
	res.pairAssets(rec, cols.Get(row, "asset"))
	rec.addJobSite(jobName(cols.Get(row, "job")))
	return nil
}

func jobSheetRow(res *Result, cols schema.Columns, row []string, i int) error {
	job := jobName(cols.Get(row, "job"))
	if job == "" {
		res.Stats.Skipped++
		return nil
	}

	site, err := jobSiteOf(job, cols, row)
	if err != nil {
		if berr := res.malformed(i, err.Error()); berr != nil {
			return berr
		}
	} else if site != nil {
		res.JobSites = append(res.JobSites, *site)
	}

	raw := cols.Get(row, "driver")
	canonical := names.Normalize(raw)
	if canonical == "" {
		return nil
	}
	res.record(canonical, raw).addJobSite(job)
	return nil
}

// jobSiteOf returns the site when the row carries coordinates, nil when it
// carries none.
func jobSiteOf(job string, cols schema.Columns, row []string) (*model.JobSite, error) {
	latRaw, lonRaw := cols.Get(row, "lat"), cols.Get(row, "lon")
	if latRaw == "" && lonRaw == "" {
		return nil, nil
	}
	lat, err := parseCoord(latRaw, 90)
	if err != nil {
		return nil, err
	}
	lon, err := parseCoord(lonRaw, 180)
	if err != nil {
		return nil, err
	}
	site := &model.JobSite{Name: job, Latitude: lat, Longitude: lon}
	if r := cols.Get(row, "radius"); r != "" {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || v <= 0 {
			return nil, eris.Errorf("extract: invalid radius %q", r)
		}
		site.RadiusMeters = v
	}
	return site, nil
}

// jobName trims a job-site cell, mapping placeholders to "".
func jobName(raw string) string {
	if names.IsPlaceholder(raw) {
		return ""
	}
	return strings.Join(strings.Fields(raw), " ")
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
