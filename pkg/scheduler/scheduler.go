// Package scheduler repeats sessions forever with a randomized rest
// between them, until the context is cancelled.
package scheduler

import (
	"context"
	"errors"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/config"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/session"
)

// Runner is one session execution; *session.Controller satisfies it.
type Runner interface {
	Run(ctx context.Context) (session.Report, error)
}

type Loop struct {
	Cfg     *config.Config
	Runner  Runner
	Sampler *delays.Sampler
}

// Run drives sessions back to back. It returns when the context is
// cancelled or when a session fails with an unrecoverable error such
// as a missing login; ordinary session failures only end that cycle.
func (l *Loop) Run(ctx context.Context) error {
	for cycle := 1; ; cycle++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		utils.Log.Infof("Starting session cycle %d", cycle)
		rep, err := l.Runner.Run(ctx)
		switch {
		case errors.Is(err, session.ErrNotLoggedIn):
			return err
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			utils.Log.Errorf("Session cycle %d failed: %v", cycle, err)
		default:
			utils.Log.Infof("Cycle %d done: %d videos, %d likes, %d follows, %d uploads",
				cycle, rep.VideosWatched, rep.LikesGiven, rep.Follows, rep.Uploads)
		}

		rest := l.Sampler.Between(l.Cfg.Timing.SessionIntervalMin, l.Cfg.Timing.SessionIntervalMax)
		utils.Log.Infof("Resting %s until the next session", rest)
		if !utils.SleepCtx(ctx, rest) {
			return ctx.Err()
		}
	}
}
