package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/rvhq/tokgrow/pkg/browser"
	"github.com/rvhq/tokgrow/pkg/config"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/detect"
	"github.com/rvhq/tokgrow/pkg/discovery"
	"github.com/rvhq/tokgrow/pkg/storage"
	"github.com/rvhq/tokgrow/pkg/throttle"
	"github.com/rvhq/tokgrow/pkg/tiktok"
)

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("sleep.start_hour", 0)
	v.Set("sleep.end_hour", 0)
	for _, key := range []string{
		"delays.short_min", "delays.short_max",
		"delays.medium_min", "delays.medium_max",
		"delays.long_min", "delays.long_max",
		"delays.typing_min", "delays.typing_max",
		"delays.keystroke_min", "delays.keystroke_max",
		"timing.hashtag_pause_min", "timing.hashtag_pause_max",
	} {
		v.Set(key, 0.0)
	}
	v.Set("timing.watch_min", 0.001)
	v.Set("timing.watch_max", 0.001)
	v.Set("timing.sleep_poll", 0.01)
	v.Set("throttle.warn_pause_min", 0.001)
	v.Set("throttle.warn_pause_max", 0.001)
	v.Set("throttle.critical_pause_min", 0.001)
	v.Set("throttle.critical_pause_max", 0.001)
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("loading fast config: %v", err)
	}
	return cfg
}

func fastSampler(t *testing.T, cfg *config.Config) *delays.Sampler {
	t.Helper()
	s, err := delays.NewSampler(cfg.Delays)
	if err != nil {
		t.Fatalf("building sampler: %v", err)
	}
	return s
}

// fakeClient records every site operation. Follows always succeed
// unless followErr is set.
type fakeClient struct {
	loggedIn  bool
	feedTexts []string
	suggested []tiktok.Suggested
	uploadErr map[string]error

	follows    []string
	likes      int
	uploads    []string
	videoIndex int
}

func (f *fakeClient) LoggedIn(context.Context) bool { return f.loggedIn }
func (f *fakeClient) OpenFeed(context.Context) error {
	f.videoIndex = 0
	return nil
}
func (f *fakeClient) NextVideo(context.Context) error {
	f.videoIndex++
	return nil
}
func (f *fakeClient) CurrentVideoText(context.Context) (string, error) {
	if f.videoIndex < len(f.feedTexts) {
		return f.feedTexts[f.videoIndex], nil
	}
	return "", nil
}
func (f *fakeClient) VideoLiked(context.Context) bool { return false }
func (f *fakeClient) Fidget(context.Context)          {}
func (f *fakeClient) LikeCurrent(context.Context) error {
	f.likes++
	return nil
}
func (f *fakeClient) FollowCurrent(ctx context.Context) (bool, error) {
	f.follows = append(f.follows, "current")
	return true, nil
}
func (f *fakeClient) FollowProfile(_ context.Context, handle string) (bool, error) {
	f.follows = append(f.follows, handle)
	return true, nil
}
func (f *fakeClient) SuggestedAccounts(context.Context) ([]tiktok.Suggested, error) {
	return f.suggested, nil
}
func (f *fakeClient) Upload(_ context.Context, path, _ string) error {
	if err := f.uploadErr[path]; err != nil {
		return err
	}
	f.uploads = append(f.uploads, path)
	return nil
}
func (f *fakeClient) Page() browser.Page { return nil }

// fakeSource serves one tag's worth of uniformly eligible profiles.
type fakeSource struct {
	handles []string
	bio     string
	mutual  bool
}

func (f *fakeSource) OpenTag(context.Context, string) error { return nil }
func (f *fakeSource) CollectHandles(context.Context, int) ([]string, error) {
	return f.handles, nil
}
func (f *fakeSource) FetchProfile(context.Context, string) (discovery.Profile, error) {
	return discovery.Profile{Bio: f.bio, HasMutual: f.mutual}, nil
}

// fakeDetector pops scripted events, then reports clean forever.
type fakeDetector struct {
	events []detect.Event
	calls  int
}

func (f *fakeDetector) Classify(context.Context, browser.Page) detect.Event {
	f.calls++
	if len(f.events) > 0 {
		ev := f.events[0]
		f.events = f.events[1:]
		return ev
	}
	return detect.Clean
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	due      []storage.Upload
	marked   map[int64]string
	counters storage.Counters
	activity []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{marked: map[int64]string{}}
}

func (f *fakeStore) DueUploads(context.Context, time.Time) ([]storage.Upload, error) {
	return f.due, nil
}
func (f *fakeStore) MarkUpload(_ context.Context, id int64, status string) error {
	f.marked[id] = status
	return nil
}
func (f *fakeStore) AddCounters(_ context.Context, _ string, c storage.Counters) error {
	f.counters.Follows += c.Follows
	f.counters.Likes += c.Likes
	f.counters.Videos += c.Videos
	return nil
}
func (f *fakeStore) AppendActivity(_ context.Context, phase, kind, detail string) error {
	f.activity = append(f.activity, fmt.Sprintf("%s/%s/%s", phase, kind, detail))
	return nil
}

func newController(t *testing.T, cfg *config.Config, client *fakeClient, src *fakeSource, det *fakeDetector, store Store) *Controller {
	t.Helper()
	return &Controller{
		Cfg:      cfg,
		Client:   client,
		Source:   src,
		Detector: det,
		Throttle: throttle.New(cfg.Throttle, nil),
		Store:    store,
		Sampler:  fastSampler(t, cfg),
	}
}

func TestFollowBudgetIsJoint(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Budgets.MaxVideos = 0
	cfg.Budgets.MaxFollows = 8
	cfg.Budgets.MaxSuggestedFollows = 3
	cfg.Niche.MinYield = 1

	// Six eligible discovery candidates, then plenty of suggestions:
	// suggested follows must stop at the shared cap of 8, not 6+3.
	src := &fakeSource{
		handles: []string{"d1", "d2", "d3", "d4", "d5", "d6"},
		bio:     "forex day trading signals",
		mutual:  true,
	}
	var suggested []tiktok.Suggested
	for i := 0; i < 5; i++ {
		suggested = append(suggested, tiktok.Suggested{
			Handle:    fmt.Sprintf("s%d", i),
			Text:      "forex trading signals · Followed by a friend",
			HasMutual: true,
		})
	}
	client := &fakeClient{loggedIn: true, suggested: suggested}
	store := newFakeStore()

	ctrl := newController(t, cfg, client, src, &fakeDetector{}, store)
	rep, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Follows != 8 {
		t.Errorf("total follows = %d, want 8", rep.Follows)
	}
	if rep.SuggestedFollows != 2 {
		t.Errorf("suggested follows = %d, want 2 (joint cap)", rep.SuggestedFollows)
	}
	if store.counters.Follows != 8 {
		t.Errorf("persisted follows = %d, want 8", store.counters.Follows)
	}
}

func TestSuggestedFollowsRequireNicheAndMutual(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Budgets.MaxVideos = 0
	cfg.Features.Mutuals = false

	client := &fakeClient{
		loggedIn: true,
		suggested: []tiktok.Suggested{
			{Handle: "catlover", Text: "funny cat videos and memes", HasMutual: true},
			{Handle: "chartist", Text: "daily forex chart breakdowns", HasMutual: false},
			{Handle: "trader.pal", Text: "swing trading setups · Followed by a friend", HasMutual: true},
		},
	}

	ctrl := newController(t, cfg, client, &fakeSource{}, &fakeDetector{}, newFakeStore())
	rep, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.SuggestedFollows != 1 {
		t.Errorf("suggested follows = %d, want 1", rep.SuggestedFollows)
	}
	if len(client.follows) != 1 || client.follows[0] != "trader.pal" {
		t.Errorf("followed %v, want only trader.pal", client.follows)
	}
}

func TestUploadsMarkedIndividually(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Budgets.MaxVideos = 0
	cfg.Features.Mutuals = false
	cfg.Features.Suggested = false

	store := newFakeStore()
	store.due = []storage.Upload{
		{ID: 1, Path: "/videos/a.mp4"},
		{ID: 2, Path: "/videos/b.mp4"},
		{ID: 3, Path: "/videos/c.mp4"},
	}
	client := &fakeClient{
		loggedIn:  true,
		uploadErr: map[string]error{"/videos/b.mp4": errors.New("post button missing")},
	}

	ctrl := newController(t, cfg, client, &fakeSource{}, &fakeDetector{}, store)
	rep, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Uploads != 2 {
		t.Errorf("uploads = %d, want 2", rep.Uploads)
	}
	if store.marked[1] != storage.StatusDone || store.marked[3] != storage.StatusDone {
		t.Errorf("successful uploads not marked done: %v", store.marked)
	}
	if store.marked[2] != storage.StatusFailed {
		t.Errorf("failed upload marked %q, want failed", store.marked[2])
	}
}

func TestCriticalThrottleSkipsRemainingPhases(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Budgets.MaxVideos = 5
	cfg.Niche.MinYield = 1

	// Three captchas push the score to 7.5, past the critical
	// threshold of 6.0, during the feed phase.
	det := &fakeDetector{events: []detect.Event{detect.Captcha, detect.Captcha, detect.Captcha}}
	client := &fakeClient{
		loggedIn:  true,
		feedTexts: []string{"forex tips", "trading setups", "scalping guide", "crypto news", "stocks"},
		suggested: []tiktok.Suggested{{Handle: "s1"}},
	}
	src := &fakeSource{handles: []string{"d1"}, bio: "forex trader", mutual: true}
	store := newFakeStore()

	ctrl := newController(t, cfg, client, src, det, store)
	rep, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Aborted {
		t.Fatal("report not marked aborted after critical throttle")
	}
	if rep.Captchas != 3 {
		t.Errorf("captcha count = %d, want 3", rep.Captchas)
	}
	if rep.Follows != 0 {
		t.Errorf("follows = %d after critical abort, want 0", rep.Follows)
	}
}

func TestMissingLoginAbortsSession(t *testing.T) {
	cfg := fastConfig(t)
	client := &fakeClient{loggedIn: false}
	ctrl := newController(t, cfg, client, &fakeSource{}, &fakeDetector{}, newFakeStore())

	_, err := ctrl.Run(context.Background())
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
	if len(client.uploads) != 0 || client.likes != 0 {
		t.Error("session acted despite missing login")
	}
}

func TestCancellationStopsRun(t *testing.T) {
	cfg := fastConfig(t)
	cfg.Budgets.MaxVideos = 1000
	client := &fakeClient{loggedIn: true, feedTexts: []string{"forex"}}
	ctrl := newController(t, cfg, client, &fakeSource{}, &fakeDetector{}, newFakeStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Run(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestCountersPersistAfterCancellation(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := fastConfig(t)
	cfg.Budgets.MaxVideos = 1000
	cfg.Features.Mutuals = false
	cfg.Features.Suggested = false
	client := &fakeClient{loggedIn: true}

	ctrl := newController(t, cfg, client, &fakeSource{}, &fakeDetector{}, db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Report, 1)
	go func() {
		rep, _ := ctrl.Run(ctx)
		done <- rep
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	var rep Report
	select {
	case rep = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	if rep.VideosWatched == 0 {
		t.Fatal("session watched no videos before cancellation")
	}

	got, err := db.GetCounters(context.Background(), cfg.Account)
	if err != nil {
		t.Fatalf("GetCounters: %v", err)
	}
	if got.Videos != rep.VideosWatched {
		t.Errorf("persisted videos = %d, session watched %d", got.Videos, rep.VideosWatched)
	}
}
