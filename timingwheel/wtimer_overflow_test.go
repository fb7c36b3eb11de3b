package timingwheel

import (
	"testing"
	"time"
)

func noopHandler(wt *Wheel, h *Timer, p interface{}) (bool, time.Duration) {
	return false, 0
}

func newOverflowTestWheel(t *testing.T) *Wheel {
	wt := &Wheel{}
	if err := wt.Init(time.Millisecond); err != nil {
		t.Fatalf("Wheel init failure: %s\n", err)
	}
	wt.refUs = wt.clock.NowUs()
	wt.refTicks = wt.Now()
	return wt
}

func TestWTOverflowParksTimer(t *testing.T) {
	wt := newOverflowTestWheel(t)
	var tl Timer
	wt.InitTimer(&tl, 0)

	delay := time.Duration(MaxTicksDiff+1000) * time.Millisecond
	if err := wt.Add(&tl, delay, noopHandler, nil); err != nil {
		t.Fatalf("Add failed: %s\n", err)
	}
	w, idx := tl.info.wheelPos()
	if w != wheelOverflow || idx != wheelNoIdx {
		t.Fatalf("expected timer parked on overflow list, got wheel %d idx %d\n", w, idx)
	}
	if tl.farTicks == 0 {
		t.Fatalf("expected non-zero farTicks for an overflowed timer\n")
	}
	if wt.overflow.isEmpty() {
		t.Fatalf("overflow list should not be empty\n")
	}
}

func TestWTOverflowRehomesWithinOneWrap(t *testing.T) {
	wt := newOverflowTestWheel(t)
	var tl Timer
	wt.InitTimer(&tl, 0)

	// less than a full wheel span (2*MaxTicksDiff) past the overflow
	// threshold, so a single processOverflow pass re-homes it.
	delay := time.Duration(MaxTicksDiff+500) * time.Millisecond
	if err := wt.Add(&tl, delay, noopHandler, nil); err != nil {
		t.Fatalf("Add failed: %s\n", err)
	}
	if w, _ := tl.info.wheelPos(); w != wheelOverflow {
		t.Fatalf("expected overflow parking, got wheel %d\n", w)
	}

	wt.lock()
	wt.processOverflow(wt.Now())
	wt.unlock()

	w, idx := tl.info.wheelPos()
	if w == wheelOverflow {
		t.Fatalf("timer should have been re-homed off the overflow list\n")
	}
	if w >= WheelsNo {
		t.Fatalf("unexpected wheel %d after re-homing (idx %d)\n", w, idx)
	}
	if tl.farTicks != 0 {
		t.Fatalf("farTicks should be cleared after re-homing, got %d\n", tl.farTicks)
	}
}

func TestWTOverflowNeedsMultipleCheckpoints(t *testing.T) {
	wt := newOverflowTestWheel(t)
	var tl Timer
	wt.InitTimer(&tl, 0)

	delay := time.Duration(2*MaxTicksDiff+10) * time.Millisecond
	if err := wt.Add(&tl, delay, noopHandler, nil); err != nil {
		t.Fatalf("Add failed: %s\n", err)
	}
	before := tl.farTicks
	if before <= MaxTicksDiff {
		t.Fatalf("test setup expected farTicks > MaxTicksDiff, got %d\n", before)
	}

	wt.lock()
	wt.processOverflow(wt.Now())
	wt.unlock()

	if w, _ := tl.info.wheelPos(); w != wheelOverflow {
		t.Fatalf("timer should still be on the overflow list after one checkpoint\n")
	}
	if tl.farTicks != before-MaxTicksDiff {
		t.Fatalf("farTicks not decremented by MaxTicksDiff: before %d after %d\n",
			before, tl.farTicks)
	}

	wt.lock()
	wt.processOverflow(wt.Now())
	wt.unlock()

	if w, _ := tl.info.wheelPos(); w == wheelOverflow {
		t.Fatalf("timer should be re-homed after enough checkpoints\n")
	}
}

func TestWTOverflowDel(t *testing.T) {
	wt := newOverflowTestWheel(t)
	var tl Timer
	wt.InitTimer(&tl, 0)

	delay := time.Duration(MaxTicksDiff+1000) * time.Millisecond
	if err := wt.Add(&tl, delay, noopHandler, nil); err != nil {
		t.Fatalf("Add failed: %s\n", err)
	}
	ok, err := wt.Del(&tl)
	if !ok || err != nil {
		t.Fatalf("Del on overflow-parked timer failed: ok=%v err=%q\n", ok, err)
	}
	if !tl.Detached() {
		t.Fatalf("timer not detached after Del\n")
	}
	if !wt.overflow.isEmpty() {
		t.Fatalf("overflow list should be empty after Del\n")
	}
}
