// Package derive computes the job timing metrics published at job stop.
package derive

import (
	"fmt"

	"batch-metrics/internal/model"
)

// Metric names, as they appear on dashboards.
const (
	MetricWaitTime             = "WaitTime"
	MetricRunTime              = "RunTime"
	MetricTotalTime            = "TotalTime"
	MetricSchedulingEfficiency = "SchedulingEfficiency"
)

// Result holds the four interval metrics of one job.
type Result struct {
	WaitTime          int64 // startedAt - createdAt, ms
	RunTime           int64 // stoppedAt - startedAt, ms
	TotalTime         int64 // stoppedAt - createdAt, ms
	EfficiencyPercent float64
}

// Intervals derives all four metrics or none.
//
// Requires createdAt <= startedAt <= stoppedAt with every epoch present,
// otherwise ErrInvalidInterval. A zero TotalTime is ErrDivisionByZero.
func Intervals(ts *model.Timestamps) (Result, error) {
	if ts == nil || ts.CreatedAt == nil || ts.StartedAt == nil || ts.StoppedAt == nil {
		return Result{}, fmt.Errorf("createdAt, startedAt and stoppedAt are required: %w", model.ErrInvalidInterval)
	}

	created, started, stopped := *ts.CreatedAt, *ts.StartedAt, *ts.StoppedAt
	if created > started || started > stopped {
		return Result{}, fmt.Errorf("createdAt=%d startedAt=%d stoppedAt=%d out of order: %w",
			created, started, stopped, model.ErrInvalidInterval)
	}

	r := Result{
		WaitTime:  started - created,
		RunTime:   stopped - started,
		TotalTime: stopped - created,
	}
	// ordered epochs far enough apart wrap around int64
	if r.WaitTime < 0 || r.RunTime < 0 || r.TotalTime < 0 {
		return Result{}, fmt.Errorf("createdAt=%d stoppedAt=%d span overflows: %w",
			created, stopped, model.ErrInvalidInterval)
	}
	if r.TotalTime == 0 {
		return Result{}, fmt.Errorf("total time is zero: %w", model.ErrDivisionByZero)
	}
	r.EfficiencyPercent = float64(r.RunTime) / float64(r.TotalTime) * 100

	return r, nil
}

// Metrics returns r as metric values in publishing order.
func (r Result) Metrics() []model.Metric {
	return []model.Metric{
		{Name: MetricWaitTime, Value: float64(r.WaitTime), Unit: model.UnitMilliseconds},
		{Name: MetricRunTime, Value: float64(r.RunTime), Unit: model.UnitMilliseconds},
		{Name: MetricTotalTime, Value: float64(r.TotalTime), Unit: model.UnitMilliseconds},
		{Name: MetricSchedulingEfficiency, Value: r.EfficiencyPercent, Unit: model.UnitPercent},
	}
}
