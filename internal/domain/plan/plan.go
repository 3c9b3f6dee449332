// Package plan provides the IntervalPlan domain entity.
package plan

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Errors
var (
	// ErrConfiguration marks every error caused by a bad plan definition.
	ErrConfiguration   = errors.New("configuration error")
	ErrEmptyPlan       = errors.New("interval plan has no legs")
	ErrInvalidInterval = errors.New("invalid interval")
)

// MaxDurationSeconds is the longest leg an interval may ask for.
const MaxDurationSeconds = 3600

// DefaultInterval is the interval used when nothing has been configured.
var DefaultInterval = Interval{Rounds: 5, DurationSeconds: 4}

// Interval is a block of consecutive rounds sharing one leg duration.
type Interval struct {
	Rounds          int     `yaml:"rounds" json:"rounds" mapstructure:"rounds" validate:"gte=0"`
	DurationSeconds float64 `yaml:"duration_seconds" json:"duration_seconds" mapstructure:"duration_seconds" validate:"gt=0,lte=3600"`
}

// Duration returns the leg duration of the interval.
func (iv Interval) Duration() time.Duration {
	return time.Duration(math.Round(iv.DurationSeconds * float64(time.Second)))
}

// String returns the compact form used in summaries, e.g. "5r × 4s".
func (iv Interval) String() string {
	return fmt.Sprintf("%dr × %ss", iv.Rounds, strconv.FormatFloat(iv.DurationSeconds, 'f', -1, 64))
}

// Plan is an immutable, validated sequence of intervals for one shape.
// Execution order is insertion order.
type Plan struct {
	intervals    []Interval
	legsPerRound int
	legsUpTo     []int // legsUpTo[i] = legs in intervals[0..i]
}

// New validates the intervals and builds a plan for the given number of
// legs per round.
func New(intervals []Interval, legsPerRound int) (*Plan, error) {
	if legsPerRound <= 0 {
		return nil, configError(errors.Newf("legs per round must be positive, got %d", legsPerRound))
	}
	if len(intervals) == 0 {
		return nil, configError(errors.Wrap(ErrEmptyPlan, "no intervals"))
	}

	validate := validator.New()
	for i, iv := range intervals {
		if math.IsNaN(iv.DurationSeconds) || math.IsInf(iv.DurationSeconds, 0) {
			return nil, configError(errors.Wrapf(ErrInvalidInterval,
				"interval %d: duration_seconds must be finite, got %v", i, iv.DurationSeconds))
		}
		if err := validate.Struct(iv); err != nil {
			return nil, configError(errors.Wrapf(ErrInvalidInterval,
				"interval %d (rounds=%d duration_seconds=%v): %v", i, iv.Rounds, iv.DurationSeconds, err))
		}
	}

	p := &Plan{
		intervals:    make([]Interval, len(intervals)),
		legsPerRound: legsPerRound,
		legsUpTo:     make([]int, len(intervals)),
	}
	copy(p.intervals, intervals)

	cum := 0
	for i, iv := range p.intervals {
		cum += iv.Rounds * legsPerRound
		p.legsUpTo[i] = cum
	}

	if cum == 0 {
		return nil, configError(errors.Wrap(ErrEmptyPlan, "every interval has zero rounds"))
	}

	return p, nil
}

// MustNew is like New but panics on error. Intended for tests and
// compile-time constant plans.
func MustNew(intervals []Interval, legsPerRound int) *Plan {
	p, err := New(intervals, legsPerRound)
	if err != nil {
		panic(err)
	}
	return p
}

// WithLegsPerRound rebuilds the plan for a different shape.
func (p *Plan) WithLegsPerRound(legsPerRound int) (*Plan, error) {
	if p == nil {
		return nil, configError(errors.Wrap(ErrEmptyPlan, "nil plan"))
	}
	return New(p.intervals, legsPerRound)
}

// Resolve returns the leg duration and interval index covering the leg
// with the given zero-based index. Intervals with zero rounds are skipped.
// Legs beyond the end of the plan resolve to the last interval that
// contributes legs.
func (p *Plan) Resolve(legsCompleted int) (time.Duration, int, error) {
	if p == nil || len(p.intervals) == 0 {
		return 0, 0, configError(errors.Wrap(ErrEmptyPlan, "resolve on empty plan"))
	}
	if legsCompleted < 0 {
		legsCompleted = 0
	}

	for i, upTo := range p.legsUpTo {
		if legsCompleted < upTo {
			return p.intervals[i].Duration(), i, nil
		}
	}

	last := p.lastActiveInterval()
	return p.intervals[last].Duration(), last, nil
}

// TotalLegs returns the number of legs in the whole plan.
func (p *Plan) TotalLegs() int {
	if p == nil || len(p.legsUpTo) == 0 {
		return 0
	}
	return p.legsUpTo[len(p.legsUpTo)-1]
}

// LegsUpToInterval returns the number of legs in intervals 0..i inclusive.
func (p *Plan) LegsUpToInterval(i int) int {
	if p == nil || len(p.legsUpTo) == 0 || i < 0 {
		return 0
	}
	if i >= len(p.legsUpTo) {
		return p.TotalLegs()
	}
	return p.legsUpTo[i]
}

// LegsPerRound returns the number of legs in one round.
func (p *Plan) LegsPerRound() int {
	if p == nil {
		return 0
	}
	return p.legsPerRound
}

// Intervals returns a copy of the intervals.
func (p *Plan) Intervals() []Interval {
	if p == nil {
		return nil
	}
	result := make([]Interval, len(p.intervals))
	copy(result, p.intervals)
	return result
}

// TotalRounds returns the number of rounds across all intervals.
func (p *Plan) TotalRounds() int {
	if p == nil {
		return 0
	}
	total := 0
	for _, iv := range p.intervals {
		total += iv.Rounds
	}
	return total
}

// TotalDuration returns the nominal length of the whole plan.
func (p *Plan) TotalDuration() time.Duration {
	if p == nil {
		return 0
	}
	var total time.Duration
	for _, iv := range p.intervals {
		total += time.Duration(iv.Rounds*p.legsPerRound) * iv.Duration()
	}
	return total
}

// String returns the summary form, e.g. "5r × 4s, 2r × 6s".
func (p *Plan) String() string {
	if p == nil {
		return "—"
	}
	return FormatIntervals(p.intervals)
}

func (p *Plan) lastActiveInterval() int {
	for i := len(p.intervals) - 1; i >= 0; i-- {
		if p.intervals[i].Rounds > 0 {
			return i
		}
	}
	return len(p.intervals) - 1
}

// IsConfigurationError reports whether err was caused by a bad plan.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func configError(err error) error {
	return errors.Mark(err, ErrConfiguration)
}

// FormatIntervals renders intervals in summary form.
func FormatIntervals(intervals []Interval) string {
	if len(intervals) == 0 {
		return "—"
	}
	parts := make([]string, len(intervals))
	for i, iv := range intervals {
		parts[i] = iv.String()
	}
	return strings.Join(parts, ", ")
}

// Parse parses the compact textual form "<rounds>x<seconds>[,...]",
// e.g. "5x4,2x6". The result is not validated; pass it to New.
func Parse(text string) ([]Interval, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, configError(errors.Wrap(ErrEmptyPlan, "empty plan text"))
	}

	var intervals []Interval
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimSpace(item)
		item = strings.ReplaceAll(item, "×", "x")
		roundsText, secondsText, ok := strings.Cut(strings.ToLower(item), "x")
		if !ok {
			return nil, configError(errors.Wrapf(ErrInvalidInterval, "item %q: expected <rounds>x<seconds>", item))
		}

		rounds, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(roundsText), "r"))
		if err != nil {
			return nil, configError(errors.Wrapf(ErrInvalidInterval, "item %q: rounds: %v", item, err))
		}
		seconds, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(secondsText), "s"), 64)
		if err != nil {
			return nil, configError(errors.Wrapf(ErrInvalidInterval, "item %q: seconds: %v", item, err))
		}

		intervals = append(intervals, Interval{Rounds: rounds, DurationSeconds: seconds})
	}
	return intervals, nil
}
