// Package detect classifies page state into detection events: a hard
// CAPTCHA challenge, a soft block, or a clean page. The verdict feeds
// the suspicion throttle; classification itself never pauses or aborts.
package detect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/browser"
)

// Event is the detection verdict after a page-affecting action.
type Event int

const (
	Clean Event = iota
	SoftBlock
	Captcha
)

func (e Event) String() string {
	switch e {
	case Clean:
		return "clean"
	case SoftBlock:
		return "soft-block"
	case Captcha:
		return "captcha"
	}
	return "unknown"
}

// Config carries the selector sets the classifier matches against.
// Selectors reach the classifier through the validated configuration
// surface; nothing here is hardcoded to one site layout.
type Config struct {
	CaptchaSelectors   []string
	CaptchaKeywords    []string
	DialogSelector     string
	PrimaryActionSel   string
	LoggedInSelectors  []string
	LoggedOutSelectors []string
}

// Classifier inspects page snapshots. It holds no mutable state, so
// classifying the same static page twice yields the same verdict.
type Classifier struct {
	cfg     Config
	capture *Capture
}

func NewClassifier(cfg Config, capture *Capture) *Classifier {
	return &Classifier{cfg: cfg, capture: capture}
}

// Classify inspects the page in decreasing order of confidence:
// a known CAPTCHA container (the markup snapshot has shadow trees
// flattened, so widgets inside encapsulated subtrees still match), a
// dialog whose primary action is disabled, then login indicators. A
// page with neither a logged-in nor a logged-out indicator is
// ambiguous; it is treated as clean but logged.
func (c *Classifier) Classify(ctx context.Context, page browser.Page) Event {
	url := strings.ToLower(page.URL())
	if strings.Contains(url, "captcha") || strings.Contains(url, "challenge") {
		c.onCaptcha(ctx, page, "url:"+url)
		return Captcha
	}

	markup, err := page.Markup(ctx)
	if err != nil {
		utils.Log.Warnf("Could not snapshot page for classification: %v", err)
		return Clean
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		utils.Log.Warnf("Could not parse page snapshot: %v", err)
		return Clean
	}

	return c.classifyDoc(ctx, page, doc)
}

// ClassifyMarkup is the snapshot-only path used by tests and by
// re-checks after a remediation attempt.
func (c *Classifier) ClassifyMarkup(markup string) Event {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Clean
	}
	return c.classifyDoc(context.Background(), nil, doc)
}

func (c *Classifier) classifyDoc(ctx context.Context, page browser.Page, doc *goquery.Document) Event {
	for _, sel := range c.cfg.CaptchaSelectors {
		if doc.Find(sel).Length() > 0 {
			c.onCaptcha(ctx, page, "element:"+sel)
			return Captcha
		}
	}

	if c.cfg.DialogSelector != "" {
		verdict := Clean
		doc.Find(c.cfg.DialogSelector).EachWithBreak(func(_ int, dialog *goquery.Selection) bool {
			text := strings.ToLower(dialog.Text())
			for _, kw := range c.cfg.CaptchaKeywords {
				if strings.Contains(text, kw) {
					verdict = Captcha
					c.onCaptcha(ctx, page, "dialog-keyword:"+kw)
					return false
				}
			}
			if c.dialogActionDisabled(dialog) {
				verdict = SoftBlock
				return false
			}
			return true
		})
		if verdict != Clean {
			return verdict
		}
	}

	if !c.anyPresent(doc, c.cfg.LoggedInSelectors) && !c.anyPresent(doc, c.cfg.LoggedOutSelectors) {
		utils.Log.Warn("Page shows neither logged-in nor logged-out indicators; treating as clean")
	}

	return Clean
}

// dialogActionDisabled reports a dialog whose primary action cannot be
// clicked, the platform's silent way of refusing an action.
func (c *Classifier) dialogActionDisabled(dialog *goquery.Selection) bool {
	sel := c.cfg.PrimaryActionSel
	if sel == "" {
		sel = "button"
	}
	disabled := false
	dialog.Find(sel).EachWithBreak(func(_ int, btn *goquery.Selection) bool {
		if _, ok := btn.Attr("disabled"); ok {
			disabled = true
			return false
		}
		if v, ok := btn.Attr("aria-disabled"); ok && v == "true" {
			disabled = true
			return false
		}
		return true
	})
	return disabled
}

func (c *Classifier) anyPresent(doc *goquery.Document, selectors []string) bool {
	for _, sel := range selectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func (c *Classifier) onCaptcha(ctx context.Context, page browser.Page, reason string) {
	utils.Log.Warnf("CAPTCHA detected (%s)", reason)
	if c.capture != nil && page != nil {
		c.capture.Save(ctx, page)
	}
}

// Capture writes diagnostic snapshots when a CAPTCHA is detected.
// Purely diagnostic; nothing reads these back.
type Capture struct {
	Dir     string
	Enabled bool
}

// Save writes a screenshot and the raw markup, named with a timestamp.
func (cp *Capture) Save(ctx context.Context, page browser.Page) {
	if cp == nil || !cp.Enabled {
		return
	}
	if err := os.MkdirAll(cp.Dir, 0o755); err != nil {
		utils.Log.Debugf("Could not create debug dir: %v", err)
		return
	}
	ts := time.Now().Unix()

	if png, err := page.Screenshot(ctx); err == nil {
		path := filepath.Join(cp.Dir, fmt.Sprintf("captcha_%d.png", ts))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			utils.Log.Debugf("Could not write debug screenshot: %v", err)
		}
	}
	if markup, err := page.Markup(ctx); err == nil {
		path := filepath.Join(cp.Dir, fmt.Sprintf("captcha_%d.html", ts))
		if err := os.WriteFile(path, []byte(markup), 0o644); err != nil {
			utils.Log.Debugf("Could not write debug markup: %v", err)
		}
	}
	utils.Log.Warnf("CAPTCHA debug capture saved to %s (captcha_%d.*)", cp.Dir, ts)
}
