// Package discovery yields candidate profiles for a niche from hashtag
// pages, falling back to alternative hashtags when the primary yield is
// too low.
package discovery

import (
	"context"
	"fmt"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/niche"
)

// Profile is what the source extracts from one profile page.
type Profile struct {
	Bio       string
	HasMutual bool
}

// Candidate is a discovered profile with both follow signals computed.
// Candidates are ephemeral: created during one pipeline pass, discarded
// after the follow decision. Eligible is true only when the bio matches
// the niche AND the mutual-connection signal is present; that
// conjunction is a hard invariant, never relaxed by configuration.
type Candidate struct {
	Handle    string
	Bio       string
	HasMutual bool
	Eligible  bool
}

// Source abstracts the site operations the pipeline drives: open a
// hashtag page, collect profile handles while scrolling, and fetch one
// profile's signals.
type Source interface {
	OpenTag(ctx context.Context, tag string) error
	CollectHandles(ctx context.Context, scrollRounds int) ([]string, error)
	FetchProfile(ctx context.Context, handle string) (Profile, error)
}

// Pipeline walks the primary hashtag and then the configured fallbacks
// in order until the cumulative eligible yield is sufficient or the
// list is exhausted. Restartable per session; each Discover call starts
// from a fresh dedup set.
type Pipeline struct {
	Source       Source
	Keywords     []string
	PrimaryTag   string
	FallbackTags []string
	ScrollRounds int

	// BeforeTag runs before each hashtag page is opened; the session
	// controller installs the hashtag-transition pause here. Returning
	// false cancels discovery.
	BeforeTag func(ctx context.Context, tag string) bool
}

// Discover streams candidates to visit in first-encounter order. The
// visitor returns false to stop early (budget exhausted, throttle
// critical). Yield counts only eligible candidates.
func (p *Pipeline) Discover(ctx context.Context, minYield int, visit func(Candidate) bool) error {
	if p.Source == nil {
		return fmt.Errorf("discovery: no source configured")
	}

	seen := make(map[string]bool)
	eligibleYield := 0

	tags := append([]string{p.PrimaryTag}, p.FallbackTags...)
	for i, tag := range tags {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 && eligibleYield >= minYield {
			break
		}
		if i > 0 {
			utils.Log.Infof("Yield %d/%d after #%s, trying fallback #%s", eligibleYield, minYield, tags[i-1], tag)
		}

		stopped, err := p.discoverTag(ctx, tag, seen, &eligibleYield, visit)
		if err != nil {
			utils.Log.Warnf("Hashtag #%s failed: %v", tag, err)
			continue
		}
		if stopped {
			return nil
		}
	}
	return ctx.Err()
}

func (p *Pipeline) discoverTag(ctx context.Context, tag string, seen map[string]bool, yield *int, visit func(Candidate) bool) (stopped bool, err error) {
	if p.BeforeTag != nil && !p.BeforeTag(ctx, tag) {
		return true, nil
	}
	if err := p.Source.OpenTag(ctx, tag); err != nil {
		return false, fmt.Errorf("opening tag page: %w", err)
	}

	handles, err := p.Source.CollectHandles(ctx, p.ScrollRounds)
	if err != nil {
		return false, fmt.Errorf("collecting handles: %w", err)
	}

	for _, h := range handles {
		if ctx.Err() != nil {
			return true, nil
		}
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true

		prof, err := p.Source.FetchProfile(ctx, h)
		if err != nil {
			utils.Log.Warnf("Could not fetch profile %s: %v", h, err)
			continue
		}

		c := Candidate{
			Handle:    h,
			Bio:       prof.Bio,
			HasMutual: prof.HasMutual,
			Eligible:  prof.HasMutual && niche.Match(prof.Bio, p.Keywords),
		}
		if c.Eligible {
			*yield++
		}
		if !visit(c) {
			return true, nil
		}
	}
	return false, nil
}
