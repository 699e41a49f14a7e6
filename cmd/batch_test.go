package main

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragle/driver-recon/internal/pipeline"
	"github.com/ragle/driver-recon/internal/report"
)

func batchDates(t *testing.T, n int) []time.Time {
	t.Helper()
	from := time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)
	days, err := dateRange(from, from.AddDate(0, 0, n-1))
	require.NoError(t, err)
	return days
}

func fakeResult(date time.Time, drivers int) *pipeline.Result {
	return &pipeline.Result{
		Date: date,
		Report: &report.Report{Summary: report.Summary{
			Date:     date.Format(time.DateOnly),
			Drivers:  drivers,
			Verified: drivers - 1,
			Excluded: 1,
		}},
	}
}

func TestRunBatch_FailureDoesNotAbort(t *testing.T) {
	dates := batchDates(t, 5)
	bad := dates[2]

	var calls atomic.Int64
	run := func(_ context.Context, d time.Time) (*pipeline.Result, error) {
		calls.Add(1)
		if d.Equal(bad) {
			return nil, errors.New("extract: malformed row budget exceeded")
		}
		return fakeResult(d, 4), nil
	}

	outcomes := runBatch(context.Background(), dates, 3, run)
	assert.Equal(t, int64(5), calls.Load())
	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, dates[i], o.Date, "outcomes are in date order")
		if i == 2 {
			assert.Error(t, o.Err)
			continue
		}
		require.NoError(t, o.Err)
		assert.Equal(t, 4, o.Result.Report.Summary.Drivers)
	}
}

func TestRunBatch_RespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	run := func(_ context.Context, d time.Time) (*pipeline.Result, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return fakeResult(d, 1), nil
	}

	runBatch(context.Background(), batchDates(t, 8), 2, run)
	assert.LessOrEqual(t, peak.Load(), int64(2))

	peak.Store(0)
	runBatch(context.Background(), batchDates(t, 4), 0, run)
	assert.Equal(t, int64(1), peak.Load(), "zero concurrency runs sequentially")
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int64
	run := func(_ context.Context, d time.Time) (*pipeline.Result, error) {
		calls.Add(1)
		return fakeResult(d, 1), nil
	}

	outcomes := runBatch(ctx, batchDates(t, 3), 1, run)
	assert.Zero(t, calls.Load())
	for _, o := range outcomes {
		assert.ErrorIs(t, o.Err, context.Canceled)
	}
}

func TestFormatBatch(t *testing.T) {
	dates := batchDates(t, 2)
	outcomes := []dateOutcome{
		{Date: dates[0], Result: fakeResult(dates[0], 12), Duration: 1500 * time.Millisecond},
		{Date: dates[1], Err: errors.New("boom"), Duration: time.Millisecond},
	}

	var buf bytes.Buffer
	formatBatch(&buf, outcomes)

	out := buf.String()
	assert.Contains(t, out, "DATE")
	assert.Contains(t, out, "2025-05-12")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "failed: boom")
}
