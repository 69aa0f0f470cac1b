package derive

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-metrics/internal/model"
)

func ms(v int64) *int64 { return &v }

func TestIntervals(t *testing.T) {
	r, err := Intervals(&model.Timestamps{CreatedAt: ms(1000), StartedAt: ms(1500), StoppedAt: ms(3000)})
	require.NoError(t, err)

	assert.Equal(t, int64(500), r.WaitTime)
	assert.Equal(t, int64(1500), r.RunTime)
	assert.Equal(t, int64(2000), r.TotalTime)
	assert.InDelta(t, 75.0, r.EfficiencyPercent, 1e-9)
}

func TestIntervalsErrors(t *testing.T) {
	tests := []struct {
		name    string
		ts      *model.Timestamps
		wantErr error
	}{
		{"nil timestamps", nil, model.ErrInvalidInterval},
		{"missing createdAt", &model.Timestamps{StartedAt: ms(1), StoppedAt: ms(2)}, model.ErrInvalidInterval},
		{"missing startedAt", &model.Timestamps{CreatedAt: ms(1), StoppedAt: ms(2)}, model.ErrInvalidInterval},
		{"missing stoppedAt", &model.Timestamps{CreatedAt: ms(1), StartedAt: ms(2)}, model.ErrInvalidInterval},
		{"started before created", &model.Timestamps{CreatedAt: ms(10), StartedAt: ms(5), StoppedAt: ms(20)}, model.ErrInvalidInterval},
		{"stopped before started", &model.Timestamps{CreatedAt: ms(10), StartedAt: ms(30), StoppedAt: ms(20)}, model.ErrInvalidInterval},
		{"span overflows", &model.Timestamps{CreatedAt: ms(math.MinInt64), StartedAt: ms(0), StoppedAt: ms(math.MaxInt64)}, model.ErrInvalidInterval},
		{"wait overflows", &model.Timestamps{CreatedAt: ms(math.MinInt64), StartedAt: ms(math.MaxInt64), StoppedAt: ms(math.MaxInt64)}, model.ErrInvalidInterval},
		{"stopped equals created", &model.Timestamps{CreatedAt: ms(1000), StartedAt: ms(1000), StoppedAt: ms(1000)}, model.ErrDivisionByZero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Intervals(tt.ts)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, Result{}, r)
		})
	}
}

func TestIntervalsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 1000; i++ {
		created := rng.Int63n(1 << 40)
		started := created + rng.Int63n(1<<20)
		stopped := started + rng.Int63n(1<<20)
		if stopped == created {
			stopped++
		}

		r, err := Intervals(&model.Timestamps{CreatedAt: &created, StartedAt: &started, StoppedAt: &stopped})
		require.NoError(t, err)

		assert.Equal(t, r.TotalTime, r.WaitTime+r.RunTime)
		assert.GreaterOrEqual(t, r.EfficiencyPercent, 0.0)
		assert.LessOrEqual(t, r.EfficiencyPercent, 100.0)
	}
}

func TestResultMetrics(t *testing.T) {
	r := Result{WaitTime: 500, RunTime: 1500, TotalTime: 2000, EfficiencyPercent: 75}

	assert.Equal(t, []model.Metric{
		{Name: "WaitTime", Value: 500, Unit: model.UnitMilliseconds},
		{Name: "RunTime", Value: 1500, Unit: model.UnitMilliseconds},
		{Name: "TotalTime", Value: 2000, Unit: model.UnitMilliseconds},
		{Name: "SchedulingEfficiency", Value: 75, Unit: model.UnitPercent},
	}, r.Metrics())
}
