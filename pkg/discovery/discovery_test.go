package discovery

import (
	"context"
	"testing"
)

var keywords = []string{"trading", "forex", "crypto"}

// fakeSource serves canned handles and profiles per tag.
type fakeSource struct {
	handles  map[string][]string
	profiles map[string]Profile
	opened   []string
}

func (f *fakeSource) OpenTag(_ context.Context, tag string) error {
	f.opened = append(f.opened, tag)
	return nil
}

func (f *fakeSource) CollectHandles(_ context.Context, _ int) ([]string, error) {
	return f.handles[f.opened[len(f.opened)-1]], nil
}

func (f *fakeSource) FetchProfile(_ context.Context, handle string) (Profile, error) {
	return f.profiles[handle], nil
}

func collect(t *testing.T, p *Pipeline, minYield int) []Candidate {
	t.Helper()
	var out []Candidate
	err := p.Discover(context.Background(), minYield, func(c Candidate) bool {
		out = append(out, c)
		return true
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	return out
}

func TestEligibilityRequiresBothSignals(t *testing.T) {
	src := &fakeSource{
		handles: map[string][]string{
			"trading": {"both", "onlyniche", "onlymutual", "neither"},
		},
		profiles: map[string]Profile{
			"both":       {Bio: "forex trader", HasMutual: true},
			"onlyniche":  {Bio: "crypto charts", HasMutual: false},
			"onlymutual": {Bio: "cat videos", HasMutual: true},
			"neither":    {Bio: "", HasMutual: false},
		},
	}
	p := &Pipeline{Source: src, Keywords: keywords, PrimaryTag: "trading", ScrollRounds: 2}

	got := collect(t, p, 1)
	if len(got) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(got))
	}
	for _, c := range got {
		if c.Handle == "both" && !c.Eligible {
			t.Errorf("candidate %s should be eligible", c.Handle)
		}
		if c.Handle != "both" && c.Eligible {
			t.Errorf("candidate %s must not be eligible (mutual=%v bio=%q)", c.Handle, c.HasMutual, c.Bio)
		}
	}
}

func TestDedupPreservesFirstEncounterOrder(t *testing.T) {
	src := &fakeSource{
		handles: map[string][]string{
			"trading": {"a", "b", "a", "c", "b"},
		},
		profiles: map[string]Profile{
			"a": {Bio: "trading", HasMutual: true},
			"b": {Bio: "trading", HasMutual: true},
			"c": {Bio: "trading", HasMutual: true},
		},
	}
	p := &Pipeline{Source: src, Keywords: keywords, PrimaryTag: "trading"}

	got := collect(t, p, 10)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d unique candidates, got %d", len(want), len(got))
	}
	for i, c := range got {
		if c.Handle != want[i] {
			t.Errorf("position %d: got %s, want %s", i, c.Handle, want[i])
		}
	}
}

func TestFallbackExhaustionTerminates(t *testing.T) {
	handles := map[string][]string{"trading": {}}
	profiles := map[string]Profile{}
	fallbacks := []string{"f1", "f2", "f3", "f4", "f5", "f6"}
	for i, tag := range fallbacks {
		h := tag + "-user"
		handles[tag] = []string{h}
		profiles[h] = Profile{Bio: "forex", HasMutual: true}
		_ = i
	}
	src := &fakeSource{handles: handles, profiles: profiles}
	p := &Pipeline{Source: src, Keywords: keywords, PrimaryTag: "trading", FallbackTags: fallbacks}

	got := collect(t, p, 5)

	// Yield never reaches 5, so every fallback is traversed exactly once
	// and the pipeline terminates.
	if len(src.opened) != 7 {
		t.Fatalf("opened %d tags (%v), want all 7", len(src.opened), src.opened)
	}
	eligible := 0
	for _, c := range got {
		if c.Eligible {
			eligible++
		}
	}
	if eligible != 6 {
		t.Fatalf("eligible yield = %d, want 6", eligible)
	}
}

func TestSufficientYieldStopsFallbacks(t *testing.T) {
	src := &fakeSource{
		handles: map[string][]string{
			"trading": {"u1", "u2"},
			"f1":      {"u3"},
		},
		profiles: map[string]Profile{
			"u1": {Bio: "trading", HasMutual: true},
			"u2": {Bio: "forex", HasMutual: true},
			"u3": {Bio: "crypto", HasMutual: true},
		},
	}
	p := &Pipeline{Source: src, Keywords: keywords, PrimaryTag: "trading", FallbackTags: []string{"f1"}}

	collect(t, p, 2)
	if len(src.opened) != 1 {
		t.Fatalf("fallback opened despite sufficient primary yield: %v", src.opened)
	}
}

func TestVisitorStopsEarly(t *testing.T) {
	src := &fakeSource{
		handles: map[string][]string{
			"trading": {"u1", "u2", "u3"},
		},
		profiles: map[string]Profile{
			"u1": {Bio: "trading", HasMutual: true},
			"u2": {Bio: "trading", HasMutual: true},
			"u3": {Bio: "trading", HasMutual: true},
		},
	}
	p := &Pipeline{Source: src, Keywords: keywords, PrimaryTag: "trading"}

	var visited int
	err := p.Discover(context.Background(), 10, func(Candidate) bool {
		visited++
		return visited < 2
	})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if visited != 2 {
		t.Fatalf("visited %d candidates after early stop, want 2", visited)
	}
}
