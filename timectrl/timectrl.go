package timectrl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode describes how the TimeController advances emulation time.
type Mode int

const (
	// RealTime advances one slot per slot duration of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// ParseMode parses "realtime" or "accelerated", ignoring case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "realtime", "real-time", "":
		return RealTime, nil
	case "accelerated":
		return Accelerated, nil
	default:
		return RealTime, fmt.Errorf("unknown time mode %q", s)
	}
}

// SlotListener is invoked at the start of every slot.
type SlotListener func(frame uint64, slot int, t time.Time)

// FrameListener is invoked at the start of every frame, before the slot
// listeners for slot 0 of that frame.
type FrameListener func(frame uint64, t time.Time)

// TimeController drives TDMA slot and frame boundaries and notifies
// registered listeners. It implements SimClock.
type TimeController struct {
	mu            sync.RWMutex
	StartTime     time.Time
	SlotDuration  time.Duration
	SlotsPerFrame int
	Mode          Mode

	// currentTime is the start of the next slot to be fired.
	currentTime time.Time
	frame       uint64
	slot        int

	slotListeners  []SlotListener
	frameListeners []FrameListener
}

// NewTimeController constructs a controller. slotsPerFrame below 1 is treated
// as 1.
func NewTimeController(start time.Time, slot time.Duration, slotsPerFrame int, mode Mode) *TimeController {
	if slotsPerFrame < 1 {
		slotsPerFrame = 1
	}
	return &TimeController{
		StartTime:     start,
		SlotDuration:  slot,
		SlotsPerFrame: slotsPerFrame,
		Mode:          mode,
		currentTime:   start,
	}
}

// Now returns the current emulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime overrides the current emulation time without firing listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// Position returns the frame and slot that the next Step will fire.
func (tc *TimeController) Position() (uint64, int) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frame, tc.slot
}

// AddSlotListener registers a callback invoked at every slot boundary.
func (tc *TimeController) AddSlotListener(fn SlotListener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.slotListeners = append(tc.slotListeners, fn)
}

// AddFrameListener registers a callback invoked at every frame boundary.
func (tc *TimeController) AddFrameListener(fn FrameListener) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.frameListeners = append(tc.frameListeners, fn)
}

// Step fires the listeners for the current slot and then advances time by
// one slot. Listeners run without the controller lock held so they may call
// Now.
func (tc *TimeController) Step() {
	tc.mu.Lock()
	frame, slot, at := tc.frame, tc.slot, tc.currentTime
	slotListeners := append([]SlotListener(nil), tc.slotListeners...)
	frameListeners := append([]FrameListener(nil), tc.frameListeners...)
	tc.mu.Unlock()

	if slot == 0 {
		for _, fn := range frameListeners {
			fn(frame, at)
		}
	}
	for _, fn := range slotListeners {
		fn(frame, slot, at)
	}

	tc.mu.Lock()
	tc.currentTime = at.Add(tc.SlotDuration)
	tc.slot++
	if tc.slot >= tc.SlotsPerFrame {
		tc.slot = 0
		tc.frame++
	}
	tc.mu.Unlock()
}

// Start runs the controller in a separate goroutine until duration worth of
// slots has elapsed (0 = until ctx is done). It returns a channel that is
// closed when the controller finishes.
func (tc *TimeController) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		tc.currentTime = tc.StartTime
		tc.frame, tc.slot = 0, 0
		tc.mu.Unlock()

		var ticks <-chan time.Time
		if tc.Mode == RealTime {
			ticker := time.NewTicker(tc.SlotDuration)
			defer ticker.Stop()
			ticks = ticker.C
		}

		elapsed := time.Duration(0)
		for {
			if duration > 0 && elapsed >= duration {
				return
			}
			if ticks != nil {
				select {
				case <-ctx.Done():
					return
				case <-ticks:
				}
			} else if ctx.Err() != nil {
				return
			}

			tc.Step()
			elapsed += tc.SlotDuration
		}
	}()
	return done
}
