package detect

import "testing"

func testClassifier() *Classifier {
	return NewClassifier(Config{
		CaptchaSelectors:   []string{`div[class*="secsdk-captcha"]`, `[class*="captcha_verify"]`},
		CaptchaKeywords:    []string{"slider", "puzzle", "drag", "rotate"},
		DialogSelector:     `div[role="dialog"]`,
		PrimaryActionSel:   "button",
		LoggedInSelectors:  []string{`[data-e2e="nav-profile"]`, `[href="/upload"]`},
		LoggedOutSelectors: []string{`[data-e2e="login-button"]`},
	}, nil)
}

const cleanPage = `<html><body>
  <div data-e2e="nav-profile">me</div>
  <div data-e2e="recommend-list-item-container">video</div>
</body></html>`

const captchaContainerPage = `<html><body>
  <div data-e2e="nav-profile">me</div>
  <div class="secsdk-captcha-wrapper"><canvas></canvas></div>
</body></html>`

// Markup snapshots have shadow trees flattened by the driver, so a
// widget rendered inside a shadow root appears inline under its host.
const shadowCaptchaPage = `<html><body>
  <div data-e2e="nav-profile">me</div>
  <div id="host"><div class="captcha_verify_container"><img></div></div>
</body></html>`

const captchaDialogPage = `<html><body>
  <div data-e2e="nav-profile">me</div>
  <div role="dialog">Drag the slider to fit the puzzle</div>
</body></html>`

const softBlockPage = `<html><body>
  <div data-e2e="nav-profile">me</div>
  <div role="dialog">Confirm<button disabled="true">OK</button></div>
</body></html>`

const healthyDialogPage = `<html><body>
  <div data-e2e="nav-profile">me</div>
  <div role="dialog">Settings<button>Save</button></div>
</body></html>`

const ambiguousPage = `<html><body><div>nothing here</div></body></html>`

func TestClassifyMarkup(t *testing.T) {
	c := testClassifier()

	cases := []struct {
		name   string
		markup string
		want   Event
	}{
		{"clean feed", cleanPage, Clean},
		{"captcha container", captchaContainerPage, Captcha},
		{"captcha inside shadow tree", shadowCaptchaPage, Captcha},
		{"captcha keyword dialog", captchaDialogPage, Captcha},
		{"dialog with disabled action", softBlockPage, SoftBlock},
		{"healthy dialog", healthyDialogPage, Clean},
		{"no login indicators", ambiguousPage, Clean},
	}

	for _, tc := range cases {
		if got := c.ClassifyMarkup(tc.markup); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyIdempotent(t *testing.T) {
	c := testClassifier()
	for _, markup := range []string{cleanPage, captchaContainerPage, softBlockPage} {
		first := c.ClassifyMarkup(markup)
		second := c.ClassifyMarkup(markup)
		if first != second {
			t.Errorf("verdict changed between calls on static page: %s then %s", first, second)
		}
	}
}
