// Package seed builds initial lines: Schelling's original configuration,
// uniformly random and balanced lines, and clustered lines derived from
// simplex noise.
package seed

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"unicode"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/segregation/internal/entropy"
	"github.com/talgya/segregation/internal/schelling"
)

// Kind selects how an initial line is generated.
type Kind string

const (
	KindOriginal Kind = "original" // Schelling's 70-agent line (size ignored)
	KindRandom   Kind = "random"   // each agent 0 or 1 with equal probability
	KindBalanced Kind = "balanced" // equal halves, shuffled
	KindNoise    Kind = "noise"    // simplex noise split at the median
)

// GenConfig holds initial line generation parameters.
type GenConfig struct {
	Kind      Kind    `json:"kind" yaml:"kind"`
	Size      int     `json:"size" yaml:"size"`
	Seed      int64   `json:"seed" yaml:"seed"`           // 0 = random
	Frequency float64 `json:"frequency" yaml:"frequency"` // noise only
	Octaves   int     `json:"octaves" yaml:"octaves"`     // noise only
}

// DefaultGenConfig returns a random line of the original size.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Kind:      KindRandom,
		Size:      schelling.DefaultSize,
		Seed:      0,
		Frequency: 0.08,
		Octaves:   3,
	}
}

// original is the line from Schelling's 1971 paper.
var original = schelling.Line{
	0, 1, 0, 0, 0, 1, 1, 0, 1, 0, 0, 1, 1, 0, 0, 1, 1, 1, 0, 1, 1, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1,
	1, 0, 1, 0, 1, 0, 0, 1, 1, 1, 0, 1, 1, 0, 0, 0, 0, 0, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1, 1, 0, 1, 0, 1, 1, 0,
}

// Original returns a fresh copy of Schelling's original line.
func Original() schelling.Line {
	return original.Clone()
}

// MaxOctaves bounds the noise layers of a generated line.
const MaxOctaves = 16

// Validate checks cfg without generating a line.
func (cfg GenConfig) Validate() error {
	switch cfg.Kind {
	case KindOriginal:
		return nil
	case KindRandom, KindBalanced, KindNoise, "":
	default:
		return fmt.Errorf("%w: unknown initial line kind %q", schelling.ErrInvalidConfiguration, cfg.Kind)
	}
	if cfg.Size <= 0 {
		return fmt.Errorf("%w: line size must be positive, got %d", schelling.ErrInvalidConfiguration, cfg.Size)
	}
	if cfg.Kind == KindNoise && cfg.Octaves > MaxOctaves {
		return fmt.Errorf("%w: octaves must not exceed %d, got %d", schelling.ErrInvalidConfiguration, MaxOctaves, cfg.Octaves)
	}
	return nil
}

// Generate creates an initial line according to cfg.
func Generate(cfg GenConfig) (schelling.Line, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind == KindOriginal {
		return Original(), nil
	}

	s := cfg.Seed
	if s == 0 {
		s = entropy.Seed()
	}

	switch cfg.Kind {
	case KindRandom, "":
		return Random(rand.New(rand.NewSource(s)), cfg.Size), nil
	case KindBalanced:
		return Balanced(rand.New(rand.NewSource(s)), cfg.Size), nil
	case KindNoise:
		return Noise(s, cfg.Size, cfg.Frequency, cfg.Octaves), nil
	default:
		return nil, fmt.Errorf("%w: unknown initial line kind %q", schelling.ErrInvalidConfiguration, cfg.Kind)
	}
}

// Random returns a line of the given size where each agent is 0 or 1 with
// equal probability.
func Random(rng *rand.Rand, size int) schelling.Line {
	line := make(schelling.Line, size)
	for i := range line {
		line[i] = rng.Intn(2)
	}
	return line
}

// Balanced returns a shuffled line holding size/2 agents of type 1 and the
// rest of type 0.
func Balanced(rng *rand.Rand, size int) schelling.Line {
	line := make(schelling.Line, size)
	for i := 0; i < size/2; i++ {
		line[i] = 1
	}
	rng.Shuffle(size, func(i, j int) { line[i], line[j] = line[j], line[i] })
	return line
}

// Noise samples one-dimensional fractal simplex noise along the line and
// assigns type 1 to the upper half of the samples. Neighbouring agents get
// correlated types, so the line starts out clustered; a lower frequency
// gives longer runs. Type counts differ by at most one.
func Noise(seed int64, size int, frequency float64, octaves int) schelling.Line {
	if frequency <= 0 {
		frequency = 0.08
	}
	octaves = min(max(octaves, 1), MaxOctaves)
	noise := opensimplex.NewNormalized(seed)

	values := make([]float64, size)
	for i := range values {
		values[i] = octaveNoise(noise, float64(i), 0, octaves, frequency, 0.5)
	}

	order := make([]int, size)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	line := make(schelling.Line, size)
	for _, idx := range order[size-size/2:] {
		line[idx] = 1
	}
	return line
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// FromString parses a line written as a run of 0 and 1 characters, such as
// "0110". Whitespace and commas are ignored.
func FromString(s string) (schelling.Line, error) {
	line := make(schelling.Line, 0, len(s))
	for i, r := range s {
		switch {
		case r == '0' || r == '1':
			line = append(line, int(r-'0'))
		case r == ',' || unicode.IsSpace(r):
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", schelling.ErrInvalidConfiguration, r, i)
		}
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: line %q holds no agents", schelling.ErrInvalidConfiguration, strings.TrimSpace(s))
	}
	return line, nil
}
