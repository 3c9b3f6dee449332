package plan

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name      string
		intervals []Interval
		wantErr   error
	}{
		{
			name:      "single interval",
			intervals: []Interval{{Rounds: 2, DurationSeconds: 4}},
		},
		{
			name:      "zero-round interval is skipped",
			intervals: []Interval{{Rounds: 0, DurationSeconds: 4}, {Rounds: 1, DurationSeconds: 3}},
		},
		{
			name:      "no intervals",
			intervals: nil,
			wantErr:   ErrEmptyPlan,
		},
		{
			name:      "all intervals empty",
			intervals: []Interval{{Rounds: 0, DurationSeconds: 4}},
			wantErr:   ErrEmptyPlan,
		},
		{
			name:      "negative rounds",
			intervals: []Interval{{Rounds: -1, DurationSeconds: 4}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "zero duration",
			intervals: []Interval{{Rounds: 1, DurationSeconds: 0}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "negative duration",
			intervals: []Interval{{Rounds: 1, DurationSeconds: 4}, {Rounds: 1, DurationSeconds: -2}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "infinite duration",
			intervals: []Interval{{Rounds: 1, DurationSeconds: math.Inf(1)}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "NaN duration",
			intervals: []Interval{{Rounds: 1, DurationSeconds: math.NaN()}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "duration past time.Duration range",
			intervals: []Interval{{Rounds: 1, DurationSeconds: 1e11}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "duration above maximum",
			intervals: []Interval{{Rounds: 1, DurationSeconds: MaxDurationSeconds + 0.5}},
			wantErr:   ErrInvalidInterval,
		},
		{
			name:      "maximum duration",
			intervals: []Interval{{Rounds: 1, DurationSeconds: MaxDurationSeconds}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.intervals, 4)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.True(t, IsConfigurationError(err))
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p)
		})
	}
}

func TestParse_InfinityRejectedByNew(t *testing.T) {
	intervals, err := Parse("1xinf")
	require.NoError(t, err)

	p, err := New(intervals, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInterval), "got %v", err)
	assert.Nil(t, p)
}

func TestNew_CopiesIntervals(t *testing.T) {
	intervals := []Interval{{Rounds: 2, DurationSeconds: 4}}
	p := MustNew(intervals, 4)
	intervals[0].Rounds = 10

	assert.Equal(t, 8, p.TotalLegs())
	got := p.Intervals()
	got[0].Rounds = 99
	assert.Equal(t, 2, p.Intervals()[0].Rounds)
}

func TestPlan_TotalLegs(t *testing.T) {
	tests := []struct {
		name         string
		intervals    []Interval
		legsPerRound int
	}{
		{name: "square single", intervals: []Interval{{Rounds: 2, DurationSeconds: 4}}, legsPerRound: 4},
		{name: "triangle pair", intervals: []Interval{{Rounds: 1, DurationSeconds: 5}, {Rounds: 1, DurationSeconds: 3}}, legsPerRound: 3},
		{name: "with gap", intervals: []Interval{{Rounds: 3, DurationSeconds: 4}, {Rounds: 0, DurationSeconds: 1}, {Rounds: 2, DurationSeconds: 6}}, legsPerRound: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MustNew(tt.intervals, tt.legsPerRound)

			sum := 0
			for _, iv := range tt.intervals {
				sum += iv.Rounds * tt.legsPerRound
			}
			assert.Equal(t, sum, p.TotalLegs())

			d, idx, err := p.Resolve(p.TotalLegs() - 1)
			require.NoError(t, err)
			last := tt.intervals[len(tt.intervals)-1]
			assert.Equal(t, last.Duration(), d)
			assert.Equal(t, len(tt.intervals)-1, idx)
		})
	}
}

func TestPlan_ResolveMonotonic(t *testing.T) {
	p := MustNew([]Interval{
		{Rounds: 2, DurationSeconds: 4},
		{Rounds: 0, DurationSeconds: 9},
		{Rounds: 1, DurationSeconds: 6},
		{Rounds: 3, DurationSeconds: 2.5},
	}, 3)

	prev := 0
	for leg := 0; leg < p.TotalLegs(); leg++ {
		d, idx, err := p.Resolve(leg)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, idx, prev, "interval index must not decrease at leg %d", leg)
		assert.NotEqual(t, 1, idx, "zero-round interval must be skipped")
		assert.Equal(t, p.Intervals()[idx].Duration(), d)
		assert.Less(t, leg, p.LegsUpToInterval(idx))
		if idx > 0 {
			assert.GreaterOrEqual(t, leg, p.LegsUpToInterval(idx-1))
		}
		prev = idx
	}
}

func TestPlan_ResolveBoundaries(t *testing.T) {
	p := MustNew([]Interval{{Rounds: 1, DurationSeconds: 5}, {Rounds: 1, DurationSeconds: 3}}, 3)

	tests := []struct {
		leg      int
		duration time.Duration
		interval int
	}{
		{leg: 0, duration: 5 * time.Second, interval: 0},
		{leg: 2, duration: 5 * time.Second, interval: 0},
		{leg: 3, duration: 3 * time.Second, interval: 1},
		{leg: 5, duration: 3 * time.Second, interval: 1},
		{leg: 6, duration: 3 * time.Second, interval: 1},
		{leg: 100, duration: 3 * time.Second, interval: 1},
	}

	for _, tt := range tests {
		d, idx, err := p.Resolve(tt.leg)
		require.NoError(t, err)
		assert.Equal(t, tt.duration, d, "leg %d", tt.leg)
		assert.Equal(t, tt.interval, idx, "leg %d", tt.leg)
	}

	assert.Equal(t, 3, p.LegsUpToInterval(0))
	assert.Equal(t, 6, p.LegsUpToInterval(1))
	assert.Equal(t, 6, p.LegsUpToInterval(5))
	assert.Equal(t, 0, p.LegsUpToInterval(-1))
}

func TestPlan_ResolveFallbackSkipsTrailingEmpty(t *testing.T) {
	p := MustNew([]Interval{{Rounds: 1, DurationSeconds: 5}, {Rounds: 0, DurationSeconds: 1}}, 4)

	d, idx, err := p.Resolve(p.TotalLegs())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
	assert.Equal(t, 0, idx)
}

func TestPlan_ResolveEmpty(t *testing.T) {
	var p *Plan
	_, _, err := p.Resolve(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPlan))
	assert.Equal(t, 0, p.TotalLegs())
}

func TestPlan_Summary(t *testing.T) {
	p := MustNew([]Interval{{Rounds: 5, DurationSeconds: 4}, {Rounds: 2, DurationSeconds: 6.5}}, 4)

	assert.Equal(t, 7, p.TotalRounds())
	assert.Equal(t, "5r × 4s, 2r × 6.5s", p.String())
	assert.Equal(t, 5*4*4*time.Second+2*4*6500*time.Millisecond, p.TotalDuration())
}

func TestPlan_WithLegsPerRound(t *testing.T) {
	p := MustNew([]Interval{{Rounds: 2, DurationSeconds: 4}}, 4)
	tri, err := p.WithLegsPerRound(3)
	require.NoError(t, err)
	assert.Equal(t, 6, tri.TotalLegs())
	assert.Equal(t, 8, p.TotalLegs())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Interval
		wantErr bool
	}{
		{name: "single", input: "5x4", want: []Interval{{Rounds: 5, DurationSeconds: 4}}},
		{name: "multiple", input: "5x4, 2x6.5", want: []Interval{{Rounds: 5, DurationSeconds: 4}, {Rounds: 2, DurationSeconds: 6.5}}},
		{name: "summary form", input: "5r × 4s", want: []Interval{{Rounds: 5, DurationSeconds: 4}}},
		{name: "empty", input: "", wantErr: true},
		{name: "missing separator", input: "54", wantErr: true},
		{name: "bad rounds", input: "ax4", wantErr: true},
		{name: "bad seconds", input: "5xb", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
