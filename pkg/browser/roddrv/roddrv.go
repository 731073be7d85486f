// Package roddrv adapts go-rod to the browser capability boundary.
// It owns browser launch/attach, element location across shadow trees,
// and human-like pointer and typing motion; nothing above this package
// touches rod types.
package roddrv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/browser"
)

// Options configure the driver. When DevToolsURL is set the driver
// attaches to an already-running browser instead of launching one,
// probing <url>/json/version until the debugger endpoint responds.
type Options struct {
	Headless      bool
	UserDataDir   string
	DevToolsURL   string
	LaunchRetries int

	// Pointer motion tuning.
	MouseStepsMin  int
	MouseStepsMax  int
	MouseStepDelay [2]time.Duration

	// Per-keystroke typing delay bounds.
	KeystrokeDelay [2]time.Duration
}

type Driver struct {
	opts    Options
	browser *rod.Browser
	rng     *rand.Rand
}

func New(opts Options) *Driver {
	if opts.LaunchRetries <= 0 {
		opts.LaunchRetries = 3
	}
	if opts.MouseStepsMin <= 0 {
		opts.MouseStepsMin = 12
	}
	if opts.MouseStepsMax < opts.MouseStepsMin {
		opts.MouseStepsMax = 80
	}
	return &Driver{
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Open launches or attaches and returns the single shared page handle.
func (d *Driver) Open(ctx context.Context) (browser.Page, error) {
	controlURL, err := d.controlURL(ctx)
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	d.browser = b

	pages, err := b.Pages()
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}
	var p *rod.Page
	if len(pages) > 0 {
		p = pages[0]
	} else {
		p, err = b.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, fmt.Errorf("opening page: %w", err)
		}
	}

	return &page{p: p, d: d}, nil
}

// CookieBlob serializes all browser cookies; the result is opaque to
// callers and only ever fed back into RestoreCookies.
func (d *Driver) CookieBlob(ctx context.Context) ([]byte, error) {
	if d.browser == nil {
		return nil, fmt.Errorf("browser not open")
	}
	cookies, err := d.browser.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}
	return json.Marshal(cookies)
}

func (d *Driver) RestoreCookies(ctx context.Context, blob []byte) error {
	if d.browser == nil {
		return fmt.Errorf("browser not open")
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(blob, &cookies); err != nil {
		return fmt.Errorf("decoding cookie blob: %w", err)
	}
	return d.browser.Context(ctx).SetCookies(cookies)
}

func (d *Driver) Close() error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	return err
}

// controlURL either starts a fresh browser via the launcher or resolves
// the websocket debugger address of an external one.
func (d *Driver) controlURL(ctx context.Context) (string, error) {
	if d.opts.DevToolsURL == "" {
		var lastErr error
		for attempt := 1; attempt <= d.opts.LaunchRetries; attempt++ {
			l := launcher.New().Headless(d.opts.Headless).Leakless(true)
			if d.opts.UserDataDir != "" {
				l = l.UserDataDir(d.opts.UserDataDir)
			}
			u, err := l.Launch()
			if err == nil {
				return u, nil
			}
			lastErr = err
			utils.Log.Warnf("Browser launch attempt %d/%d failed: %v", attempt, d.opts.LaunchRetries, err)
			if !utils.SleepCtx(ctx, 2*time.Second) {
				return "", ctx.Err()
			}
		}
		return "", fmt.Errorf("browser launch failed after %d attempts: %w", d.opts.LaunchRetries, lastErr)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 10
	client.Logger = nil
	req, err := retryablehttp.NewRequest("GET", strings.TrimRight(d.opts.DevToolsURL, "/")+"/json/version", nil)
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("devtools endpoint not reachable: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading devtools version info: %w", err)
	}
	ws := gjson.GetBytes(body, "webSocketDebuggerUrl").String()
	if ws == "" {
		return "", fmt.Errorf("devtools endpoint returned no webSocketDebuggerUrl")
	}
	return ws, nil
}

// flattenMarkup serializes the document with shadow roots inlined, so
// selector matching above this boundary sees encapsulated subtrees.
const flattenMarkup = `() => {
	const serialize = (node) => {
		if (node.nodeType === Node.TEXT_NODE) return node.textContent;
		if (node.nodeType !== Node.ELEMENT_NODE) return "";
		let html = "<" + node.tagName.toLowerCase();
		for (const a of node.attributes) {
			html += " " + a.name + '="' + String(a.value).replace(/"/g, "&quot;") + '"';
		}
		html += ">";
		if (node.shadowRoot) {
			for (const c of node.shadowRoot.childNodes) html += serialize(c);
		}
		for (const c of node.childNodes) html += serialize(c);
		html += "</" + node.tagName.toLowerCase() + ">";
		return html;
	};
	return serialize(document.documentElement);
}`

type page struct {
	p *rod.Page
	d *Driver
}

func (pg *page) URL() string {
	info, err := pg.p.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (pg *page) Navigate(ctx context.Context, url string) error {
	p := pg.p.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return p.WaitDOMStable(time.Second, 0.1)
}

func (pg *page) Markup(ctx context.Context) (string, error) {
	res, err := pg.p.Context(ctx).Eval(flattenMarkup)
	if err != nil {
		return "", fmt.Errorf("serializing page markup: %w", err)
	}
	return res.Value.Str(), nil
}

func (pg *page) Screenshot(ctx context.Context) ([]byte, error) {
	return pg.p.Context(ctx).Screenshot(false, nil)
}

func (pg *page) find(ctx context.Context, descriptors ...string) (*rod.Element, error) {
	p := pg.p.Context(ctx).Sleeper(rod.NotFoundSleeper)
	for _, sel := range descriptors {
		el, err := p.Element(sel)
		if err != nil {
			continue
		}
		if vis, err := el.Visible(); err == nil && vis {
			return el, nil
		}
	}
	return nil, fmt.Errorf("descriptors %v: %w", descriptors, browser.ErrNotFound)
}

func (pg *page) Visible(ctx context.Context, descriptors ...string) bool {
	_, err := pg.find(ctx, descriptors...)
	return err == nil
}

func (pg *page) Click(ctx context.Context, descriptors ...string) error {
	el, err := pg.find(ctx, descriptors...)
	if err != nil {
		return err
	}
	shape, err := el.Shape()
	if err != nil {
		return fmt.Errorf("element shape: %w", err)
	}
	box := shape.Box()
	target := proto.Point{
		X: box.X + box.Width/2 + float64(pg.d.rng.Intn(7)-3),
		Y: box.Y + box.Height/2 + float64(pg.d.rng.Intn(5)-2),
	}
	if err := pg.moveHuman(ctx, target); err != nil {
		return err
	}
	return pg.p.Context(ctx).Mouse.Click(proto.InputMouseButtonLeft, 1)
}

// moveHuman walks the pointer along a curved path with jittered step
// timing instead of teleporting to the target.
func (pg *page) moveHuman(ctx context.Context, target proto.Point) error {
	m := pg.p.Context(ctx).Mouse
	start := m.Position()

	steps := pg.d.opts.MouseStepsMin
	if spread := pg.d.opts.MouseStepsMax - pg.d.opts.MouseStepsMin; spread > 0 {
		steps += pg.d.rng.Intn(spread + 1)
	}

	dx := target.X - start.X
	dy := target.Y - start.Y
	dist := math.Hypot(dx, dy)
	bend := math.Max(30, dist*0.3) * (pg.d.rng.Float64()*0.6 - 0.3)
	cp := proto.Point{
		X: start.X + dx*0.5 - dy/math.Max(dist, 1)*bend,
		Y: start.Y + dy*0.5 + dx/math.Max(dist, 1)*bend,
	}

	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		u := 1 - t
		pt := proto.Point{
			X: u*u*start.X + 2*u*t*cp.X + t*t*target.X,
			Y: u*u*start.Y + 2*u*t*cp.Y + t*t*target.Y,
		}
		if err := m.MoveTo(pt); err != nil {
			return err
		}
		if d := pg.stepDelay(); d > 0 && !utils.SleepCtx(ctx, d) {
			return ctx.Err()
		}
	}
	return nil
}

func (pg *page) stepDelay() time.Duration {
	lo, hi := pg.d.opts.MouseStepDelay[0], pg.d.opts.MouseStepDelay[1]
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(pg.d.rng.Int63n(int64(hi-lo)))
}

func (pg *page) Type(ctx context.Context, descriptor, text string) error {
	if err := pg.Click(ctx, descriptor); err != nil {
		return err
	}
	p := pg.p.Context(ctx)
	lo, hi := pg.d.opts.KeystrokeDelay[0], pg.d.opts.KeystrokeDelay[1]
	for _, r := range text {
		if err := p.InsertText(string(r)); err != nil {
			return err
		}
		d := lo
		if hi > lo {
			d += time.Duration(pg.d.rng.Int63n(int64(hi - lo)))
		}
		if d > 0 && !utils.SleepCtx(ctx, d) {
			return ctx.Err()
		}
	}
	return nil
}

func (pg *page) Scroll(ctx context.Context, distance int) error {
	steps := 8 + pg.d.rng.Intn(8)
	return pg.p.Context(ctx).Mouse.Scroll(0, float64(distance), steps)
}

func (pg *page) Text(ctx context.Context, descriptors ...string) (string, error) {
	el, err := pg.find(ctx, descriptors...)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (pg *page) AttrAll(ctx context.Context, descriptor, attr string) ([]string, error) {
	els, err := pg.p.Context(ctx).Sleeper(rod.NotFoundSleeper).Elements(descriptor)
	if err != nil {
		return nil, nil
	}
	var out []string
	for _, el := range els {
		v, err := el.Attribute(attr)
		if err != nil || v == nil {
			continue
		}
		out = append(out, *v)
	}
	return out, nil
}

func (pg *page) SetFiles(ctx context.Context, descriptor string, paths []string) error {
	el, err := pg.p.Context(ctx).Sleeper(rod.NotFoundSleeper).Element(descriptor)
	if err != nil {
		return fmt.Errorf("file input %q not found: %w", descriptor, err)
	}
	return el.SetFiles(paths)
}
