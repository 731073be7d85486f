package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/rvhq/tokgrow/pkg/config"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/session"
)

type fakeRunner struct {
	runs int
	err  error
}

func (f *fakeRunner) Run(context.Context) (session.Report, error) {
	f.runs++
	return session.Report{}, f.err
}

func testLoop(t *testing.T, runner Runner) *Loop {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.Set("timing.session_interval_min_minutes", 0.0001)
	v.Set("timing.session_interval_max_minutes", 0.0001)
	cfg, err := config.Load(v)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	sampler, err := delays.NewSampler(cfg.Delays)
	if err != nil {
		t.Fatalf("building sampler: %v", err)
	}
	return &Loop{Cfg: cfg, Runner: runner, Sampler: sampler}
}

func TestLoopStopsOnCancel(t *testing.T) {
	runner := &fakeRunner{}
	loop := testLoop(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}
	if runner.runs == 0 {
		t.Error("loop never ran a session")
	}
}

func TestLoopAbortsWhenLoginIsGone(t *testing.T) {
	runner := &fakeRunner{err: session.ErrNotLoggedIn}
	loop := testLoop(t, runner)

	err := loop.Run(context.Background())
	if !errors.Is(err, session.ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
	if runner.runs != 1 {
		t.Errorf("runs = %d, want 1", runner.runs)
	}
}

func TestLoopContinuesPastSessionFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("feed unreachable")}
	loop := testLoop(t, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := loop.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if runner.runs < 2 {
		t.Errorf("runs = %d, want at least 2 despite failures", runner.runs)
	}
}
