// Package throttle tracks an adaptive suspicion score across the
// process lifetime and turns detection events into backoff pauses.
// The throttle is advisory: it never fails and never aborts anything
// itself; the session controller is responsible for honoring pauses
// and curtailing work when the score goes critical.
package throttle

import (
	"math/rand"
	"time"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/detect"
)

// Score deltas per event. A CAPTCHA is the strongest signal; a soft
// block weaker; clean actions slowly recover trust.
const (
	captchaBump   = 2.5
	softBlockBump = 1.0
	cleanDecay    = 0.2
)

// State is the process-wide suspicion state. Exactly one writer (the
// throttle, invoked synchronously from the single control thread)
// mutates it. Score never goes negative.
type State struct {
	Score      float64
	LastUpdate time.Time
}

// PauseRange bounds the sampled backoff duration for one severity.
type PauseRange struct {
	Min time.Duration
	Max time.Duration
}

// Config carries thresholds and pause ranges; loaded once, read-only.
type Config struct {
	WarnThreshold     float64
	CriticalThreshold float64
	WarnPause         PauseRange
	CriticalPause     PauseRange
}

// Level classifies a pause decision.
type Level int

const (
	None Level = iota
	Warn
	Critical
)

// Pause is the throttle's advisory decision after one event.
type Pause struct {
	Level    Level
	Duration time.Duration
}

type Throttle struct {
	cfg   Config
	state *State
	rng   *rand.Rand
}

// New builds a throttle around an explicit state object so tests can
// construct fresh instances instead of sharing module-level globals.
func New(cfg Config, state *State) *Throttle {
	if state == nil {
		state = &State{}
	}
	return &Throttle{
		cfg:   cfg,
		state: state,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Observe consumes one detection event, updates the score, and returns
// the pause decision. Updates are per event, never batched; the caller
// must honor the pause before its next action so a session cannot rack
// up CAPTCHAs while continuing at full speed.
func (t *Throttle) Observe(ev detect.Event) Pause {
	switch ev {
	case detect.Captcha:
		t.state.Score += captchaBump
		utils.Log.Warnf("Suspicion +%.1f (captcha), score now %.1f", captchaBump, t.state.Score)
	case detect.SoftBlock:
		t.state.Score += softBlockBump
		utils.Log.Warnf("Suspicion +%.1f (soft block), score now %.1f", softBlockBump, t.state.Score)
	case detect.Clean:
		t.state.Score -= cleanDecay
		if t.state.Score < 0 {
			t.state.Score = 0
		}
	}
	t.state.LastUpdate = time.Now()

	switch {
	case t.state.Score >= t.cfg.CriticalThreshold:
		return Pause{Level: Critical, Duration: t.sample(t.cfg.CriticalPause)}
	case t.state.Score >= t.cfg.WarnThreshold:
		return Pause{Level: Warn, Duration: t.sample(t.cfg.WarnPause)}
	}
	return Pause{Level: None}
}

// Score returns the current suspicion score.
func (t *Throttle) Score() float64 {
	return t.state.Score
}

// Critical reports whether the score sits at or above the critical
// threshold; controllers curtail the remaining session when it does.
func (t *Throttle) Critical() bool {
	return t.state.Score >= t.cfg.CriticalThreshold
}

func (t *Throttle) sample(r PauseRange) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(t.rng.Int63n(int64(r.Max-r.Min)+1))
}
