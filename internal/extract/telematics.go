package extract

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/ragle/driver-recon/internal/fetcher"
	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/names"
	"github.com/ragle/driver-recon/internal/schema"
)

var telematicsDriver = schema.Field{Name: "driver", Required: true, Candidates: []schema.Candidate{
	schema.Has("driver", "name"),
	schema.Has("driver").Except(" id", "#", "license", "phone", "group"),
	schema.Has("operator").Except(" id", "#"),
	schema.Has("employee").Except(" id", "#"),
	schema.Has("name").Except("asset", "vehicle", "unit", "location", "site", "place"),
}}

var telematicsDate = schema.Field{Name: "date", Candidates: []schema.Candidate{
	schema.Has("date").Except("update"),
	schema.Has("day").Except("holiday"),
}}

var drivingHistoryFields = []schema.Field{
	telematicsDriver,
	{Name: "key_on", Required: true, Candidates: []schema.Candidate{
		schema.Has("key on"),
		schema.Has("keyon"),
		schema.Has("key", "on").Except("off"),
		schema.Has("ignition on"),
		schema.Has("engine on"),
		schema.Has("start", "time"),
		schema.Has("start").Except("location", "address", "odometer", "lat", "lon"),
	}},
	{Name: "key_off", Candidates: []schema.Candidate{
		schema.Has("key off"),
		schema.Has("keyoff"),
		schema.Has("key", "off"),
		schema.Has("ignition off"),
		schema.Has("engine off"),
		schema.Has("end", "time"),
		schema.Has("stop", "time"),
		schema.Has("end").Except("location", "address", "odometer", "lat", "lon"),
		schema.Has("stop").Except("location", "address", "odometer", "lat", "lon"),
	}},
	{Name: "asset", Candidates: []schema.Candidate{
		schema.Has("asset", "id"),
		schema.Has("asset").Except("desc", "type"),
		schema.Has("vehicle", "id"),
		schema.Has("vehicle").Except("desc", "type"),
		schema.Has("unit").Except("desc", "type"),
		schema.Has("equip"),
		schema.Has("truck"),
	}},
	telematicsDate,
}

var activityDetailFields = []schema.Field{
	telematicsDriver,
	{Name: "location", Required: true, Candidates: []schema.Candidate{
		schema.Has("location", "desc"),
		schema.Has("location").Except("lat", "lon", "time", "id"),
		schema.Has("address"),
		schema.Has("job", "site"),
		schema.Has("site").Except("time"),
		schema.Has("landmark"),
		schema.Has("geofence"),
		schema.Has("place"),
		schema.Has("description"),
	}},
	{Name: "lat", Candidates: []schema.Candidate{schema.Has("lat")}},
	{Name: "lon", Candidates: []schema.Candidate{schema.Has("lon"), schema.Has("lng")}},
	{Name: "arrival", Candidates: []schema.Candidate{
		schema.Has("arriv"),
		schema.Has("time in"),
		schema.Has("timein"),
		schema.Has("entered"),
		schema.Has("start time"),
	}},
	{Name: "departure", Candidates: []schema.Candidate{
		schema.Has("depart"),
		schema.Has("time out"),
		schema.Has("timeout"),
		schema.Has("exit"),
		schema.Has("left"),
		schema.Has("end time"),
	}},
	telematicsDate,
}

// DrivingHistory extracts the driving-history export for opts.Date found in
// dir via pattern. Each driver is reduced to the earliest key-on and latest
// key-off of the day; every non-trailer asset driven is kept.
func DrivingHistory(dir, pattern string, opts Options) (*Result, error) {
	return readTelematics(model.SourceDrivingHistory, dir, pattern, drivingHistoryFields, opts, drivingRow)
}

// ActivityDetail extracts the activity-detail export for opts.Date. Each
// driver gets its location observations in file order plus the earliest
// arrival and latest departure.
func ActivityDetail(dir, pattern string, opts Options) (*Result, error) {
	return readTelematics(model.SourceActivityDetail, dir, pattern, activityDetailFields, opts, activityRow)
}

type rowFunc func(res *Result, cols schema.Columns, row []string, i int, opts Options) error

func readTelematics(
	src model.Source,
	dir, pattern string,
	fields []schema.Field,
	opts Options,
	handle rowFunc,
) (*Result, error) {
	path, ok, err := fetcher.LocateDated(dir, pattern, opts.Date)
	res := newResult(src, path, opts)
	if err != nil {
		return res.degrade(missing(src, dir, err)), nil
	}
	if !ok {
		return res.degrade(missing(src, dir,
			eris.Errorf("extract: no %s file for %s", fetcher.DatedName(pattern, opts.Date), opts.Date.Format(time.DateOnly)))), nil
	}

	rows, _, err := fetcher.ReadCSVFile(path, fetcher.CSVOptions{})
	if err != nil {
		return res.degrade(unrecognized(src, path, err)), nil
	}

	hdr, cols, err := schema.FindHeader(rows, fields, headerScan)
	if err != nil {
		return res.degrade(unrecognized(src, path, err)), nil
	}

	for i := hdr + 1; i < len(rows); i++ {
		if blank(rows[i]) {
			continue
		}
		res.Stats.Rows++
		if err := handle(res, cols, rows[i], i, opts); err != nil {
			return res, err
		}
	}
	res.summarize()
	return res, nil
}

// rowDate reports whether a row belongs to the report date. A row with an
// unreadable date cell is malformed.
func rowDate(cols schema.Columns, row []string, opts Options) (bool, error) {
	raw := cols.Get(row, "date")
	if raw == "" || opts.Date.IsZero() {
		return true, nil
	}
	d, err := parseDate(raw, opts.location())
	if err != nil {
		return false, err
	}
	return sameDay(d, opts.Date), nil
}

// stamp parses an optional time cell. ok is false for an empty cell or a
// dated value on another day.
func stamp(raw string, opts Options) (t *time.Time, ok bool, err error) {
	if raw == "" {
		return nil, false, nil
	}
	v, dated, err := parseStamp(raw, opts.Date, opts.location())
	if err != nil {
		return nil, false, err
	}
	if dated && !opts.Date.IsZero() && !sameDay(v, opts.Date) {
		return nil, false, nil
	}
	return &v, true, nil
}

func drivingRow(res *Result, cols schema.Columns, row []string, i int, opts Options) error {
	raw := cols.Get(row, "driver")
	canonical := names.Normalize(raw)
	if canonical == "" {
		res.Stats.Skipped++
		return nil
	}

	inDay, err := rowDate(cols, row, opts)
	if err != nil {
		return res.malformed(i, err.Error())
	}
	if !inDay {
		res.Stats.OutOfRange++
		return nil
	}

	onRaw, offRaw := cols.Get(row, "key_on"), cols.Get(row, "key_off")
	on, onOK, err := stamp(onRaw, opts)
	if err != nil {
		return res.malformed(i, err.Error())
	}
	off, offOK, err := stamp(offRaw, opts)
	if err != nil {
		return res.malformed(i, err.Error())
	}
	if !onOK && !offOK {
		if onRaw != "" || offRaw != "" {
			res.Stats.OutOfRange++
		} else {
			res.Stats.Skipped++
		}
		return nil
	}

	// Trailer rows keep their key times; only the trailer pairing is dropped.
	rec := res.record(canonical, raw)
	res.pairAssets(rec, cols.Get(row, "asset"))
	rec.KeyOn = model.Earliest(rec.KeyOn, on)
	rec.KeyOff = model.Latest(rec.KeyOff, off)
	return nil
}

func activityRow(res *Result, cols schema.Columns, row []string, i int, opts Options) error {
	raw := cols.Get(row, "driver")
	canonical := names.Normalize(raw)
	if canonical == "" {
		res.Stats.Skipped++
		return nil
	}

	inDay, err := rowDate(cols, row, opts)
	if err != nil {
		return res.malformed(i, err.Error())
	}
	if !inDay {
		res.Stats.OutOfRange++
		return nil
	}

	obs := model.LocationObservation{Description: jobName(cols.Get(row, "location"))}

	arrRaw, depRaw := cols.Get(row, "arrival"), cols.Get(row, "departure")
	arr, arrOK, err := stamp(arrRaw, opts)
	if err != nil {
		return res.malformed(i, err.Error())
	}
	dep, depOK, err := stamp(depRaw, opts)
	if err != nil {
		return res.malformed(i, err.Error())
	}
	if (arrRaw != "" && !arrOK) || (depRaw != "" && !depOK) {
		res.Stats.OutOfRange++
		return nil
	}
	obs.Arrival, obs.Departure = arr, dep

	latRaw, lonRaw := cols.Get(row, "lat"), cols.Get(row, "lon")
	if latRaw != "" || lonRaw != "" {
		lat, err := parseCoord(latRaw, 90)
		if err != nil {
			return res.malformed(i, err.Error())
		}
		lon, err := parseCoord(lonRaw, 180)
		if err != nil {
			return res.malformed(i, err.Error())
		}
		obs.Latitude, obs.Longitude = lat, lon
	}

	if obs.Description == "" && obs.Arrival == nil && obs.Departure == nil && obs.Latitude == nil {
		res.Stats.Skipped++
		return nil
	}

	rec := res.record(canonical, raw)
	rec.Locations = append(rec.Locations, obs)
	rec.TimeIn = model.Earliest(rec.TimeIn, arr)
	rec.TimeOut = model.Latest(rec.TimeOut, dep)
	return nil
}
