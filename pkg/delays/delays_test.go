package delays

import (
	"context"
	"testing"
	"time"
)

func testRanges() Ranges {
	return Ranges{
		Short:     Range{Min: 2 * time.Second, Max: 4500 * time.Millisecond},
		Medium:    Range{Min: 5 * time.Second, Max: 9 * time.Second},
		Long:      Range{Min: 10 * time.Second, Max: 18 * time.Second},
		Typing:    Range{Min: 40 * time.Millisecond, Max: 180 * time.Millisecond},
		Keystroke: Range{Min: 40 * time.Millisecond, Max: 180 * time.Millisecond},
	}
}

func TestSampleStaysWithinBounds(t *testing.T) {
	s, err := NewSampler(testRanges())
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	for _, c := range []Class{Short, Medium, Long, Typing, Keystroke} {
		r := s.rangeFor(c)
		for i := 0; i < 10000; i++ {
			d := s.Sample(c)
			if d < r.Min || d > r.Max {
				t.Fatalf("class %s sample %s outside [%s, %s]", c, d, r.Min, r.Max)
			}
		}
	}
}

func TestZeroWidthRange(t *testing.T) {
	r := testRanges()
	r.Short = Range{Min: 3 * time.Second, Max: 3 * time.Second}
	s, err := NewSampler(r)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}
	for i := 0; i < 100; i++ {
		if d := s.Sample(Short); d != 3*time.Second {
			t.Fatalf("zero-width range must return its single value, got %s", d)
		}
	}
}

func TestInvalidRangeRejected(t *testing.T) {
	r := testRanges()
	r.Long = Range{Min: 10 * time.Second, Max: 5 * time.Second}
	if _, err := NewSampler(r); err == nil {
		t.Fatal("expected error for reversed range")
	}
}

func TestWaitInterrupted(t *testing.T) {
	r := testRanges()
	r.Long = Range{Min: 5 * time.Second, Max: 5 * time.Second}
	s, err := NewSampler(r)
	if err != nil {
		t.Fatalf("NewSampler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if s.Wait(ctx, Long) {
		t.Error("Wait should report interruption")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Wait took %s after cancellation, want prompt return", elapsed)
	}
}
