// Package session runs one complete activity cycle for an account:
// wait out the sleep window, post due uploads, browse the feed, then
// grow the following through discovery and suggestions. Every phase is
// bounded by the per-session budgets and every page-affecting step is
// followed by a detection check feeding the suspicion throttle.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/browser"
	"github.com/rvhq/tokgrow/pkg/config"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/detect"
	"github.com/rvhq/tokgrow/pkg/discovery"
	"github.com/rvhq/tokgrow/pkg/niche"
	"github.com/rvhq/tokgrow/pkg/sleepgate"
	"github.com/rvhq/tokgrow/pkg/storage"
	"github.com/rvhq/tokgrow/pkg/throttle"
	"github.com/rvhq/tokgrow/pkg/tiktok"
)

// ErrNotLoggedIn aborts the session before any phase runs; unlike a
// phase failure this one is not recoverable within the cycle.
var ErrNotLoggedIn = errors.New("account is not logged in")

// Client is the slice of site operations the controller drives.
// *tiktok.Client satisfies it.
type Client interface {
	LoggedIn(ctx context.Context) bool
	OpenFeed(ctx context.Context) error
	NextVideo(ctx context.Context) error
	CurrentVideoText(ctx context.Context) (string, error)
	VideoLiked(ctx context.Context) bool
	LikeCurrent(ctx context.Context) error
	Fidget(ctx context.Context)
	FollowCurrent(ctx context.Context) (bool, error)
	FollowProfile(ctx context.Context, handle string) (bool, error)
	SuggestedAccounts(ctx context.Context) ([]tiktok.Suggested, error)
	Upload(ctx context.Context, path, caption string) error
	Page() browser.Page
}

// Store is the persistence slice the controller needs. *storage.DB
// satisfies it.
type Store interface {
	DueUploads(ctx context.Context, now time.Time) ([]storage.Upload, error)
	MarkUpload(ctx context.Context, id int64, status string) error
	AddCounters(ctx context.Context, account string, c storage.Counters) error
	AppendActivity(ctx context.Context, phase, kind, detail string) error
}

// Detector classifies the current page state. *detect.Classifier
// satisfies it.
type Detector interface {
	Classify(ctx context.Context, page browser.Page) detect.Event
}

// Budget tracks consumption against the per-session caps. Reset at the
// start of every cycle, never carried over.
type Budget struct {
	VideosWatched    int
	LikesGiven       int
	Follows          int
	SuggestedFollows int
	Uploads          int
}

// Report summarizes one finished cycle.
type Report struct {
	Budget
	Captchas   int
	SoftBlocks int
	// Aborted is set when the throttle crossed the critical threshold
	// and the remaining phases were skipped.
	Aborted bool
}

type Controller struct {
	Cfg      *config.Config
	Client   Client
	Source   discovery.Source
	Detector Detector
	Throttle *throttle.Throttle
	Store    Store
	Sampler  *delays.Sampler

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time

	budget   Budget
	report   Report
	cooldown time.Duration
}

func (s *Controller) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run executes one full cycle. A phase failure is logged and the next
// phase still runs; only cancellation, a missing login, or a critical
// throttle level cuts the cycle short. The report is valid either way.
func (s *Controller) Run(ctx context.Context) (Report, error) {
	s.budget = Budget{}
	s.report = Report{}
	s.cooldown = 0

	if !sleepgate.Wait(ctx, s.Cfg.Sleep, s.Cfg.Timing.SleepPoll) {
		return s.report, ctx.Err()
	}

	if !s.Client.LoggedIn(ctx) {
		return s.report, ErrNotLoggedIn
	}

	phases := []struct {
		name    string
		enabled bool
		run     func(context.Context) error
	}{
		{"uploads", true, s.runUploads},
		{"feed", true, s.runFeed},
		{"discovery", s.Cfg.Features.Mutuals, s.runDiscovery},
		{"suggested", s.Cfg.Features.Suggested, s.runSuggested},
	}

	for _, p := range phases {
		if ctx.Err() != nil {
			break
		}
		if s.report.Aborted {
			utils.Log.Warnf("Skipping %s phase, suspicion is critical (score %.1f)", p.name, s.Throttle.Score())
			break
		}
		if !p.enabled {
			utils.Log.Debugf("Phase %s disabled", p.name)
			continue
		}
		utils.Log.Infof("Phase: %s", p.name)
		if err := p.run(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			utils.Log.Warnf("Phase %s failed: %v", p.name, err)
			s.logActivity(ctx, p.name, "error", err.Error())
		}
	}

	if s.cooldown > 0 && ctx.Err() == nil {
		utils.Log.Warnf("Cooling down for %s before ending the session", s.cooldown)
		utils.SleepCtx(ctx, s.cooldown)
	}

	s.report.Budget = s.budget
	s.persist()
	return s.report, ctx.Err()
}

// checkpoint classifies the current page, feeds the throttle, and
// serves any mandated pause. Returns false when the cycle must stop.
func (s *Controller) checkpoint(ctx context.Context) bool {
	ev := s.Detector.Classify(ctx, s.Client.Page())
	switch ev {
	case detect.Captcha:
		s.report.Captchas++
	case detect.SoftBlock:
		s.report.SoftBlocks++
	}

	pause := s.Throttle.Observe(ev)
	switch pause.Level {
	case throttle.Warn:
		utils.Log.Warnf("Suspicion warning, pausing %s", pause.Duration)
		if !utils.SleepCtx(ctx, pause.Duration) {
			return false
		}
	case throttle.Critical:
		s.report.Aborted = true
		s.cooldown = pause.Duration
		return false
	}
	return ctx.Err() == nil
}

func (s *Controller) runUploads(ctx context.Context) error {
	due, err := s.Store.DueUploads(ctx, s.now())
	if err != nil {
		return fmt.Errorf("listing due uploads: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	utils.Log.Infof("%d upload(s) due", len(due))

	for _, u := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.Client.Upload(ctx, u.Path, u.Caption); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			utils.Log.Warnf("Upload %s failed: %v", u.Path, err)
			s.mark(ctx, u.ID, storage.StatusFailed)
			s.logActivity(ctx, "uploads", "failed", u.Path)
		} else {
			s.budget.Uploads++
			s.mark(ctx, u.ID, storage.StatusDone)
			s.logActivity(ctx, "uploads", "posted", u.Path)
		}
		if !s.checkpoint(ctx) {
			return nil
		}
		s.Sampler.Wait(ctx, delays.Long)
	}
	return nil
}

func (s *Controller) runFeed(ctx context.Context) error {
	if err := s.Client.OpenFeed(ctx); err != nil {
		return err
	}
	if !s.checkpoint(ctx) {
		return nil
	}

	b := s.Cfg.Budgets
	tm := s.Cfg.Timing
	for s.budget.VideosWatched < b.MaxVideos {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Split the watch so the idle fidget lands mid-video.
		watch := s.Sampler.Between(tm.WatchMin, tm.WatchMax)
		if !utils.SleepCtx(ctx, watch/2) {
			return ctx.Err()
		}
		s.Client.Fidget(ctx)
		if !utils.SleepCtx(ctx, watch-watch/2) {
			return ctx.Err()
		}
		s.budget.VideosWatched++

		text, err := s.Client.CurrentVideoText(ctx)
		if err != nil {
			utils.Log.Debugf("Could not read video text: %v", err)
		} else if niche.Match(text, s.Cfg.Niche.Keywords) &&
			s.budget.LikesGiven < b.MaxLikes &&
			!s.Client.VideoLiked(ctx) {
			if err := s.Client.LikeCurrent(ctx); err != nil {
				utils.Log.Warnf("Like failed: %v", err)
			} else {
				s.budget.LikesGiven++
				s.logActivity(ctx, "feed", "like", text)
				if !s.checkpoint(ctx) {
					return nil
				}
			}
		}

		if s.budget.VideosWatched%b.CheckInterval == 0 {
			if !s.checkpoint(ctx) {
				return nil
			}
		}
		if err := s.Client.NextVideo(ctx); err != nil {
			return fmt.Errorf("advancing feed: %w", err)
		}
		s.Sampler.Wait(ctx, delays.Short)
	}
	return nil
}

func (s *Controller) runDiscovery(ctx context.Context) error {
	b := s.Cfg.Budgets
	if s.budget.Follows >= b.MaxFollows {
		return nil
	}

	tm := s.Cfg.Timing
	pipeline := &discovery.Pipeline{
		Source:       s.Source,
		Keywords:     s.Cfg.Niche.Keywords,
		PrimaryTag:   s.Cfg.Niche.TargetTag,
		FallbackTags: s.Cfg.Niche.FallbackTags,
		ScrollRounds: b.FeedScrollRounds,
		BeforeTag: func(ctx context.Context, tag string) bool {
			d := s.Sampler.Between(tm.HashtagPauseMin, tm.HashtagPauseMax)
			utils.Log.Infof("Pausing %s before #%s", d, tag)
			return utils.SleepCtx(ctx, d)
		},
	}

	visit := func(c discovery.Candidate) bool {
		if !c.Eligible {
			return true
		}
		// The source just visited the candidate's profile, so the
		// follow happens in place.
		did, err := s.Client.FollowCurrent(ctx)
		if err != nil {
			utils.Log.Warnf("Follow @%s failed: %v", c.Handle, err)
			return true
		}
		if did {
			s.budget.Follows++
			utils.Log.Infof("Followed @%s (%d/%d)", c.Handle, s.budget.Follows, b.MaxFollows)
			s.logActivity(ctx, "discovery", "follow", c.Handle)
		}
		if !s.checkpoint(ctx) {
			return false
		}
		s.Sampler.Wait(ctx, delays.Long)
		return s.budget.Follows < b.MaxFollows
	}

	return pipeline.Discover(ctx, s.Cfg.Niche.MinYield, visit)
}

func (s *Controller) runSuggested(ctx context.Context) error {
	b := s.Cfg.Budgets
	if s.budget.SuggestedFollows >= b.MaxSuggestedFollows || s.budget.Follows >= b.MaxFollows {
		return nil
	}

	suggested, err := s.Client.SuggestedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("reading suggestions: %w", err)
	}
	if len(suggested) == 0 {
		utils.Log.Info("No suggested accounts visible")
		return nil
	}

	for _, sug := range suggested {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.budget.SuggestedFollows >= b.MaxSuggestedFollows || s.budget.Follows >= b.MaxFollows {
			break
		}
		// Same eligibility conjunction as discovery: the card must both
		// match the niche and carry a mutual-connection signal.
		if !niche.Match(sug.Text, s.Cfg.Niche.Keywords) {
			utils.Log.Debugf("Skipping suggested @%s: outside niche", sug.Handle)
			continue
		}
		if !sug.HasMutual {
			utils.Log.Debugf("Suggested @%s niche-relevant but no mutual indicator", sug.Handle)
			continue
		}
		did, err := s.Client.FollowProfile(ctx, sug.Handle)
		if err != nil {
			utils.Log.Warnf("Suggested follow @%s failed: %v", sug.Handle, err)
			continue
		}
		if did {
			// Suggested follows draw from the same session-wide follow
			// budget as discovery follows.
			s.budget.SuggestedFollows++
			s.budget.Follows++
			utils.Log.Infof("Followed suggested @%s (%d/%d)", sug.Handle, s.budget.SuggestedFollows, b.MaxSuggestedFollows)
			s.logActivity(ctx, "suggested", "follow", sug.Handle)
		}
		if !s.checkpoint(ctx) {
			return nil
		}
		s.Sampler.Wait(ctx, delays.Medium)
	}
	return nil
}

func (s *Controller) mark(ctx context.Context, id int64, status string) {
	if err := s.Store.MarkUpload(ctx, id, status); err != nil {
		utils.Log.Errorf("Could not mark upload %d as %s: %v", id, status, err)
	}
}

func (s *Controller) logActivity(ctx context.Context, phase, kind, detail string) {
	if err := s.Store.AppendActivity(ctx, phase, kind, detail); err != nil {
		utils.Log.Debugf("Could not append activity: %v", err)
	}
}

// persist runs on a detached context: an operator stop cancels the
// session's context, and the counters must still reach the store.
func (s *Controller) persist() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b := s.budget
	err := s.Store.AddCounters(ctx, s.Cfg.Account, storage.Counters{
		Follows: b.Follows,
		Likes:   b.LikesGiven,
		Videos:  b.VideosWatched,
	})
	if err != nil {
		utils.Log.Errorf("Could not persist session counters: %v", err)
	}
	summary := fmt.Sprintf("videos=%d likes=%d follows=%d suggested=%d uploads=%d score=%.1f",
		b.VideosWatched, b.LikesGiven, b.Follows, b.SuggestedFollows, b.Uploads, s.Throttle.Score())
	s.logActivity(ctx, "session", "summary", summary)
	utils.Log.Infof("Session complete: %s", summary)
}
