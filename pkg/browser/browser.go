// Package browser defines the capability boundary to the underlying
// browser-automation driver. Everything above this boundary works with
// semantic operations ("click the element matching one of these
// descriptors, with human-like pointer motion"); how the driver locates
// elements, moves the pointer, or pierces shadow trees is its own
// business.
package browser

import (
	"context"
	"errors"
)

// ErrNotFound reports that no descriptor matched a visible element.
// Callers that treat an absent element as an empty value must check
// for it explicitly instead of relying on a zero result.
var ErrNotFound = errors.New("no visible element matched")

// Page is a handle on a single live browser tab. One page is owned by
// the session controller for the duration of a session; no other
// component holds it concurrently.
type Page interface {
	// URL returns the current page address.
	URL() string

	// Navigate loads the given address and waits for the DOM to settle.
	Navigate(ctx context.Context, url string) error

	// Markup returns the serialized page content with shadow trees
	// flattened into their hosts. Callers parse this snapshot instead of
	// traversing the live DOM, so encapsulated CAPTCHA widgets are
	// visible to selector matching.
	Markup(ctx context.Context) (string, error)

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// Visible reports whether any element matching one of the
	// descriptors is currently visible.
	Visible(ctx context.Context, descriptors ...string) bool

	// Click locates the first visible element matching one of the
	// descriptors and clicks it with human-like pointer motion.
	Click(ctx context.Context, descriptors ...string) error

	// Type focuses the element and types text with per-keystroke pacing.
	Type(ctx context.Context, descriptor, text string) error

	// Scroll moves the viewport down by roughly the given pixel distance
	// using a smooth motion curve.
	Scroll(ctx context.Context, distance int) error

	// Text returns the inner text of the first visible element matching
	// one of the descriptors, or an error wrapping ErrNotFound when none
	// matches.
	Text(ctx context.Context, descriptors ...string) (string, error)

	// AttrAll collects the named attribute from every element matching
	// the descriptor, in document order.
	AttrAll(ctx context.Context, descriptor, attr string) ([]string, error)

	// SetFiles attaches local files to a file input element.
	SetFiles(ctx context.Context, descriptor string, paths []string) error
}

// Driver owns the browser process lifecycle.
type Driver interface {
	// Open launches (or attaches to) a browser and returns the single
	// shared page handle.
	Open(ctx context.Context) (Page, error)

	// CookieBlob exports the browser's cookies as an opaque blob for
	// the auth store; RestoreCookies injects a previously saved blob.
	CookieBlob(ctx context.Context) ([]byte, error)
	RestoreCookies(ctx context.Context, blob []byte) error

	// Close shuts the browser down. Idempotent.
	Close() error
}
