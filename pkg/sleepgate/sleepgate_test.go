package sleepgate

import (
	"context"
	"testing"
	"time"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 14, hour, 30, 0, 0, time.Local)
}

func TestMayActOvernightWindow(t *testing.T) {
	w := Window{StartHour: 22, EndHour: 7}

	blocked := []int{22, 23, 0, 3, 6}
	for _, h := range blocked {
		if MayAct(at(h), w) {
			t.Errorf("hour %d should be blocked by window 22-7", h)
		}
	}

	allowed := []int{7, 12, 21}
	for _, h := range allowed {
		if !MayAct(at(h), w) {
			t.Errorf("hour %d should be allowed by window 22-7", h)
		}
	}
}

func TestMayActSameDayWindow(t *testing.T) {
	w := Window{StartHour: 1, EndHour: 5}

	if MayAct(at(3), w) {
		t.Error("hour 3 should be blocked by window 1-5")
	}
	if !MayAct(at(5), w) {
		t.Error("hour 5 should be allowed by window 1-5 (end exclusive)")
	}
	if !MayAct(at(0), w) {
		t.Error("hour 0 should be allowed by window 1-5")
	}
}

func TestEqualEndpointsDisableGate(t *testing.T) {
	w := Window{StartHour: 9, EndHour: 9}
	for h := 0; h < 24; h++ {
		if !MayAct(at(h), w) {
			t.Fatalf("start==end must disable the gate, but hour %d was blocked", h)
		}
	}
}

func TestWaitCancellation(t *testing.T) {
	// Pick a window that always blocks the current hour so Wait must poll.
	h := time.Now().Hour()
	w := Window{StartHour: h, EndHour: (h + 1) % 24}
	if MayAct(time.Now(), w) {
		t.Skip("window construction did not block current hour")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() { done <- Wait(ctx, w, 50*time.Millisecond) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("Wait should report false after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return promptly after cancellation")
	}
}
