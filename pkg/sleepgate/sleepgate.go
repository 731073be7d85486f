// Package sleepgate implements the wall-clock kill switch: the bot
// performs no actions while the local hour falls inside the configured
// sleep window.
package sleepgate

import (
	"context"
	"time"

	"github.com/rvhq/tokgrow/internal/utils"
)

// Window is a wrap-around hour interval [StartHour, EndHour) in local
// time. StartHour == EndHour disables the gate entirely (never sleeps)
// rather than blocking the full 24 hours.
type Window struct {
	StartHour int
	EndHour   int
}

// Disabled reports whether the window blocks nothing.
func (w Window) Disabled() bool {
	return w.StartHour == w.EndHour
}

// MayAct returns true when actions are allowed at the given time.
func MayAct(now time.Time, w Window) bool {
	if w.Disabled() {
		return true
	}
	h := now.Hour()
	if w.StartHour > w.EndHour {
		// Overnight window, e.g. 22 -> 7.
		return !(h >= w.StartHour || h < w.EndHour)
	}
	return !(w.StartHour <= h && h < w.EndHour)
}

// Wait blocks until the gate permits action, polling at the given coarse
// interval. Returns false if ctx was cancelled while waiting. No action
// budget is consumed here; callers simply stall.
func Wait(ctx context.Context, w Window, poll time.Duration) bool {
	if poll <= 0 {
		poll = time.Minute
	}
	for !MayAct(time.Now(), w) {
		utils.Log.Infof("Sleep window active (%02d:00-%02d:00), checking again in %s", w.StartHour, w.EndHour, poll)
		if !utils.SleepCtx(ctx, poll) {
			return false
		}
	}
	return ctx.Err() == nil
}
