// Package delays produces the randomized wait durations that pace every
// browser action. Ranges are process-wide configuration, read-only after
// load; a sampled duration never falls outside its configured bounds.
package delays

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rvhq/tokgrow/internal/utils"
)

// Class selects which configured range a delay is drawn from.
type Class int

const (
	Short Class = iota
	Medium
	Long
	Typing
	Keystroke
)

func (c Class) String() string {
	switch c {
	case Short:
		return "short"
	case Medium:
		return "medium"
	case Long:
		return "long"
	case Typing:
		return "typing"
	case Keystroke:
		return "keystroke"
	}
	return "unknown"
}

// Range is an inclusive [Min, Max] duration interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) valid() bool {
	return r.Min >= 0 && r.Max >= r.Min
}

// Ranges holds one range per delay class.
type Ranges struct {
	Short     Range
	Medium    Range
	Long      Range
	Typing    Range
	Keystroke Range
}

// Sampler draws uniform durations from validated per-class ranges.
type Sampler struct {
	ranges Ranges
	rng    *rand.Rand
}

// NewSampler validates the ranges up front so a bad configuration is
// reported at load time, not mid-session.
func NewSampler(ranges Ranges) (*Sampler, error) {
	for _, rc := range []struct {
		c Class
		r Range
	}{
		{Short, ranges.Short},
		{Medium, ranges.Medium},
		{Long, ranges.Long},
		{Typing, ranges.Typing},
		{Keystroke, ranges.Keystroke},
	} {
		if !rc.r.valid() {
			return nil, fmt.Errorf("delay range for class %s is invalid: min=%s max=%s", rc.c, rc.r.Min, rc.r.Max)
		}
	}
	return &Sampler{
		ranges: ranges,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Sampler) rangeFor(c Class) Range {
	switch c {
	case Short:
		return s.ranges.Short
	case Medium:
		return s.ranges.Medium
	case Long:
		return s.ranges.Long
	case Typing:
		return s.ranges.Typing
	case Keystroke:
		return s.ranges.Keystroke
	}
	return s.ranges.Medium
}

// Sample returns a uniform duration within the class bounds, inclusive.
func (s *Sampler) Sample(c Class) time.Duration {
	r := s.rangeFor(c)
	if r.Max == r.Min {
		return r.Min
	}
	return r.Min + time.Duration(s.rng.Int63n(int64(r.Max-r.Min)+1))
}

// Between returns a uniform duration in [min, max], clamping a reversed
// interval to min.
func (s *Sampler) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(s.rng.Int63n(int64(max-min)+1))
}

// Wait suspends the caller for a freshly sampled delay of the given
// class. Returns false if the wait was interrupted by cancellation.
func (s *Sampler) Wait(ctx context.Context, c Class) bool {
	d := s.Sample(c)
	utils.Log.Debugf("Pacing %s delay: %s", c, d)
	return utils.SleepCtx(ctx, d)
}
