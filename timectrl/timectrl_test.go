package timectrl

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, 10, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestTimeControllerStepFiresFrameBeforeSlotZero(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, 3, Accelerated)

	var events []string
	tc.AddFrameListener(func(frame uint64, _ time.Time) {
		events = append(events, "frame")
	})
	tc.AddSlotListener(func(frame uint64, slot int, _ time.Time) {
		events = append(events, "slot")
	})

	for i := 0; i < 4; i++ {
		tc.Step()
	}

	want := []string{"frame", "slot", "slot", "slot", "frame", "slot"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}

	frame, slot := tc.Position()
	if frame != 1 || slot != 1 {
		t.Fatalf("Position() = (%d, %d), want (1, 1)", frame, slot)
	}
	if got, want := tc.Now(), start.Add(4*time.Millisecond); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestTimeControllerSlotTimestamps(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 2*time.Millisecond, 2, Accelerated)

	var stamps []time.Time
	tc.AddSlotListener(func(_ uint64, _ int, at time.Time) {
		stamps = append(stamps, at)
	})
	tc.Step()
	tc.Step()

	if !stamps[0].Equal(start) || !stamps[1].Equal(start.Add(2*time.Millisecond)) {
		t.Fatalf("slot stamps = %v", stamps)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, 4, Accelerated)

	done := tc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestTimeControllerStartStopsOnCancel(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, 4, RealTime)

	var mu sync.Mutex
	slots := 0
	tc.AddSlotListener(func(uint64, int, time.Time) {
		mu.Lock()
		slots++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx, 0)
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if slots == 0 {
		t.Fatalf("expected at least one slot before cancel")
	}
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	if got := c.Advance(time.Second); !got.Equal(start.Add(time.Second)) {
		t.Fatalf("Advance() = %v", got)
	}
	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Set did not move the clock")
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"realtime": RealTime, "Accelerated": Accelerated, "": RealTime} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = (%v, %v), want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("warp"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
