// Package shape provides the exercise shapes a session can follow.
package shape

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnknownShape is returned when a shape name cannot be parsed.
var ErrUnknownShape = errors.New("unknown exercise shape")

// Shape represents the geometry of one round: the number of legs and
// the phase names walked in order.
type Shape int

const (
	Triangle Shape = iota // Inhale, Hold, Exhale
	Square                // Inhale, Hold, Exhale, Hold
)

var (
	trianglePhases = []string{"Inhale", "Hold", "Exhale"}
	squarePhases   = []string{"Inhale", "Hold", "Exhale", "Hold"}
)

// String returns the string representation of the shape.
func (s Shape) String() string {
	switch s {
	case Triangle:
		return "triangle"
	case Square:
		return "square"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the supported shapes.
func (s Shape) Valid() bool {
	return s == Triangle || s == Square
}

// LegsPerRound returns the number of legs in one round.
func (s Shape) LegsPerRound() int {
	return len(s.phases())
}

// PhaseNames returns a copy of the ordered phase names.
func (s Shape) PhaseNames() []string {
	phases := s.phases()
	result := make([]string, len(phases))
	copy(result, phases)
	return result
}

// PhaseName returns the phase name for a phase index.
// The index wraps around the round.
func (s Shape) PhaseName(index int) string {
	phases := s.phases()
	if len(phases) == 0 {
		return ""
	}
	index %= len(phases)
	if index < 0 {
		index += len(phases)
	}
	return phases[index]
}

// DisplayName returns the capitalized name used in summaries.
func (s Shape) DisplayName() string {
	switch s {
	case Triangle:
		return "Triangle"
	case Square:
		return "Square"
	default:
		return "Unknown"
	}
}

func (s Shape) phases() []string {
	switch s {
	case Triangle:
		return trianglePhases
	case Square:
		return squarePhases
	default:
		return nil
	}
}

// Parse parses a shape name. Legs-per-round numbers ("3", "4") are
// accepted as well, matching the values persisted by older settings files.
func Parse(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "triangle", "3":
		return Triangle, nil
	case "square", "box", "4":
		return Square, nil
	default:
		return 0, errors.Wrapf(ErrUnknownShape, "shape %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Shape) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, errors.Wrapf(ErrUnknownShape, "shape %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
