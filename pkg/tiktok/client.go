// Package tiktok is the site-facing client: it knows the platform's
// URLs and semantic element names and drives them through the browser
// capability boundary. Each method is one page-affecting operation;
// detection checks and pacing around them belong to the session
// controller.
package tiktok

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/browser"
	"github.com/rvhq/tokgrow/pkg/config"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/discovery"
	"github.com/rvhq/tokgrow/pkg/niche"
)

var handleRe = regexp.MustCompile(`/@([\w.]+)`)

// NormalizeHandle extracts a clean profile handle from any site URL,
// or "" when the URL is not a profile link. Video, photo, live and
// playlist links are rejected.
func NormalizeHandle(href string) string {
	if href == "" || !strings.Contains(href, "/@") {
		return ""
	}
	for _, seg := range []string{"/video/", "/photo/", "/live/", "/playlist/"} {
		if strings.Contains(href, seg) {
			return ""
		}
	}
	m := handleRe.FindStringSubmatch(href)
	if m == nil || len(m[1]) < 2 {
		return ""
	}
	return m[1]
}

// Suggested is one sidebar recommendation card with both follow
// signals already computed from the card's content.
type Suggested struct {
	Handle    string
	Text      string
	HasMutual bool
}

type Client struct {
	page    browser.Page
	cfg     *config.Config
	sampler *delays.Sampler
	rng     *rand.Rand
}

func NewClient(page browser.Page, cfg *config.Config, sampler *delays.Sampler) *Client {
	return &Client{
		page:    page,
		cfg:     cfg,
		sampler: sampler,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Page exposes the underlying handle for classification.
func (c *Client) Page() browser.Page {
	return c.page
}

func (c *Client) profileURL(handle string) string {
	return c.cfg.Base + "/@" + handle
}

// LoggedIn checks the explicit logged-out indicators first, then the
// positive logged-in ones.
func (c *Client) LoggedIn(ctx context.Context) bool {
	if c.page.Visible(ctx, c.cfg.Selector("logged_out")...) {
		return false
	}
	return c.page.Visible(ctx, c.cfg.Selector("logged_in")...)
}

func (c *Client) OpenFeed(ctx context.Context) error {
	if err := c.page.Navigate(ctx, c.cfg.Base); err != nil {
		return fmt.Errorf("opening feed: %w", err)
	}
	c.sampler.Wait(ctx, delays.Medium)
	return ctx.Err()
}

// NextVideo scrolls to the following feed item with a smooth motion.
func (c *Client) NextVideo(ctx context.Context) error {
	return c.page.Scroll(ctx, 400+c.rng.Intn(400))
}

// CurrentVideoText gathers the visible description and author of the
// current video for niche matching. A video without a description is
// ordinary; only driver failures surface as errors.
func (c *Client) CurrentVideoText(ctx context.Context) (string, error) {
	desc, err := c.page.Text(ctx, c.cfg.Selector("video_desc")...)
	if err != nil && !errors.Is(err, browser.ErrNotFound) {
		return "", err
	}
	author, err := c.page.Text(ctx, c.cfg.Selector("video_author")...)
	if err != nil && !errors.Is(err, browser.ErrNotFound) {
		return "", err
	}
	return strings.TrimSpace(desc + " " + author), nil
}

// VideoLiked reports whether the current video already carries the
// active like state.
func (c *Client) VideoLiked(ctx context.Context) bool {
	return c.page.Visible(ctx, c.cfg.Selector("like_button_active")...)
}

func (c *Client) LikeCurrent(ctx context.Context) error {
	return c.page.Click(ctx, c.cfg.Selector("like_button")...)
}

// Fidget performs occasional small idle motions while a video plays,
// gated by the stealth chances. Failures are ignored; fidgeting is
// never load-bearing.
func (c *Client) Fidget(ctx context.Context) {
	st := c.cfg.Stealth
	if c.rng.Float64() < st.MicroScrollChance {
		_ = c.page.Scroll(ctx, 20+c.rng.Intn(50))
	}
	if c.rng.Float64() < st.IdleDriftChance {
		_ = c.page.Scroll(ctx, -(5 + c.rng.Intn(20)))
	}
}

// OpenTag navigates to a hashtag page.
func (c *Client) OpenTag(ctx context.Context, tag string) error {
	if err := c.page.Navigate(ctx, c.cfg.Base+"/tag/"+tag); err != nil {
		return fmt.Errorf("opening #%s: %w", tag, err)
	}
	c.sampler.Wait(ctx, delays.Medium)
	return ctx.Err()
}

// CollectHandles scrolls the current page the given number of rounds
// and returns profile handles in first-encounter order.
func (c *Client) CollectHandles(ctx context.Context, scrollRounds int) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	collect := func() error {
		hrefs, err := c.page.AttrAll(ctx, c.cfg.Selector("profile_link")[0], "href")
		if err != nil {
			return err
		}
		for _, href := range hrefs {
			if h := NormalizeHandle(href); h != "" && !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
		return nil
	}

	if err := collect(); err != nil {
		return nil, err
	}
	for i := 0; i < scrollRounds; i++ {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err := c.page.Scroll(ctx, 300+c.rng.Intn(400)); err != nil {
			utils.Log.Debugf("Scroll round %d failed: %v", i+1, err)
			break
		}
		if !c.sampler.Wait(ctx, delays.Short) {
			return out, ctx.Err()
		}
		if err := collect(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FetchProfile visits a profile page and extracts both follow signals.
func (c *Client) FetchProfile(ctx context.Context, handle string) (discovery.Profile, error) {
	if err := c.page.Navigate(ctx, c.profileURL(handle)); err != nil {
		return discovery.Profile{}, fmt.Errorf("opening profile @%s: %w", handle, err)
	}
	c.sampler.Wait(ctx, delays.Medium)

	// Profiles without a bio are common; treat a missing element as an
	// empty bio but surface every other driver failure.
	bio, err := c.page.Text(ctx, c.cfg.Selector("bio_text")...)
	if err != nil && !errors.Is(err, browser.ErrNotFound) {
		return discovery.Profile{}, err
	}
	title, err := c.page.Text(ctx, c.cfg.Selector("user_title")...)
	if err != nil && !errors.Is(err, browser.ErrNotFound) {
		return discovery.Profile{}, err
	}

	return discovery.Profile{
		Bio:       strings.TrimSpace(bio + " " + title),
		HasMutual: c.page.Visible(ctx, c.cfg.Selector("mutual_indicator")...),
	}, nil
}

// FollowCurrent clicks the follow button on the currently open profile.
// Returns false without error when the account is already followed or
// requested.
func (c *Client) FollowCurrent(ctx context.Context) (bool, error) {
	text, err := c.page.Text(ctx, c.cfg.Selector("follow_button")...)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "following", "friends", "requested", "follow back":
		return false, nil
	case "follow", "":
		// proceed
	default:
		utils.Log.Debugf("Unexpected follow button text %q, skipping", text)
		return false, nil
	}
	if err := c.page.Click(ctx, c.cfg.Selector("follow_button")...); err != nil {
		return false, err
	}
	return true, nil
}

// FollowProfile navigates to a handle and follows it.
func (c *Client) FollowProfile(ctx context.Context, handle string) (bool, error) {
	if err := c.page.Navigate(ctx, c.profileURL(handle)); err != nil {
		return false, fmt.Errorf("opening profile @%s: %w", handle, err)
	}
	c.sampler.Wait(ctx, delays.Medium)
	return c.FollowCurrent(ctx)
}

// SuggestedAccounts parses the sidebar recommendation cards from the
// current page snapshot.
func (c *Client) SuggestedAccounts(ctx context.Context) ([]Suggested, error) {
	markup, err := c.page.Markup(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshotting page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing page snapshot: %w", err)
	}

	var section *goquery.Selection
	for _, sel := range c.cfg.Selector("suggested_section") {
		if s := doc.Find(sel); s.Length() > 0 {
			section = s.First()
			break
		}
	}
	if section == nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []Suggested
	cardSel := strings.Join(c.cfg.Selector("user_card"), ", ")
	mutualSel := strings.Join(c.cfg.Selector("mutual_indicator"), ", ")
	section.Find(cardSel).Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find(`a[href*="/@"]`).First().Attr("href")
		if href == "" {
			href, _ = card.Attr("href")
		}
		h := NormalizeHandle(href)
		if h == "" || seen[h] {
			return
		}
		seen[h] = true
		text := strings.TrimSpace(card.Text())
		out = append(out, Suggested{
			Handle:    h,
			Text:      text,
			HasMutual: card.Find(mutualSel).Length() > 0 || niche.Match(text, c.cfg.Niche.MutualTexts),
		})
	})
	return out, nil
}

// Upload submits one video with its caption. This is deliberately a
// single coarse operation: navigate, attach, caption, post, confirm.
func (c *Client) Upload(ctx context.Context, path, caption string) error {
	if err := c.page.Navigate(ctx, c.cfg.Base+"/upload"); err != nil {
		return fmt.Errorf("opening upload page: %w", err)
	}
	if !c.sampler.Wait(ctx, delays.Long) {
		return ctx.Err()
	}

	if err := c.page.SetFiles(ctx, c.cfg.Selector("upload_file_input")[0], []string{path}); err != nil {
		return fmt.Errorf("attaching video: %w", err)
	}
	if !c.sampler.Wait(ctx, delays.Long) {
		return ctx.Err()
	}

	if caption != "" {
		var typed bool
		for _, sel := range c.cfg.Selector("caption_input") {
			if err := c.page.Type(ctx, sel, caption); err == nil {
				typed = true
				break
			}
		}
		if !typed {
			utils.Log.Warn("Could not type caption, posting without it")
		}
		c.sampler.Wait(ctx, delays.Medium)
	}

	if err := c.page.Click(ctx, c.cfg.Selector("post_button")...); err != nil {
		return fmt.Errorf("clicking post: %w", err)
	}
	if !c.sampler.Wait(ctx, delays.Long) {
		return ctx.Err()
	}

	if c.page.Visible(ctx, c.cfg.Selector("upload_success")...) {
		return nil
	}
	if !strings.Contains(strings.ToLower(c.page.URL()), "upload") {
		// Redirected away from the upload page; the post went through.
		return nil
	}
	return fmt.Errorf("could not confirm upload success for %s", path)
}
