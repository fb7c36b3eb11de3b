// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package timingwheel

import (
	"time"

	"github.com/intuitivelabs/corekit/internal/xlog"
)

// ticker should be called periodically, ideally at each tick duration
// _must_ not ever be called in parallel.
func (wt *Wheel) ticker() uint64 {
	now := wt.clock.NowUs()
	if now < wt.lastTickUs {
		// time going backwards!!
		wt.badTime++
		if wt.badTime > 10 {
			// re-init
			if xlog.ERRon() {
				xlog.ERR("trying to recover after time going backward %d times"+
					" with %s\n",
					wt.badTime, usDuration(wt.lastTickUs-now))
			}
			wt.lastTickUs = now
			wt.refUs = wt.lastTickUs
			wt.refTicks = wt.Now()
		} else if xlog.DBGon() {
			xlog.DBG("ticker: time going backward with %s (%d times)\n",
				usDuration(wt.lastTickUs-now), wt.badTime)
		}
		return 0
	}
	wt.badTime = 0
	if usDuration(now-wt.refUs)/wt.tickDuration > (MaxTicksDiff - 2) {
		if xlog.DBGon() {
			xlog.DBG("ticker: ticks ref value overflowing after %s"+
				" (max ticks %d) -> re-adjusting\n",
				usDuration(now-wt.refUs), MaxTicksDiff)
		}
		// re-init, we risk overflowing the ticks
		// new ref. us = last tick us
		// new ref ticks = current tick - Ticks(now - last tick us)
		diff, _ := wt.Ticks(usDuration(now - wt.lastTickUs))
		wt.refUs = wt.lastTickUs
		wt.refTicks = wt.Now().Sub(diff)
	}

	runTime := usDuration(now - wt.refUs)
	runTicks := wt.Now().Sub(wt.refTicks)
	if runTime > wt.Duration(runTicks.AddUint64(1+20)) {
		if xlog.DBGon() {
			lost, _ := wt.Ticks(runTime - wt.Duration(runTicks))
			xlog.DBG("ticker: lost ticks since start-up: too slow:"+
				" ticks diff %d = %s, but time diff %s => lost %d ticks\n",
				runTicks.Val(), wt.Duration(runTicks), runTime, lost.Val())
		}
	} else if runTicks.Val() > 1 &&
		runTime < wt.Duration(runTicks.SubUint64(1)) {
		if xlog.DBGon() {
			faster, _ := wt.Ticks(wt.Duration(runTicks) - runTime)
			xlog.DBG("ticker: lost ticks since start-up: too fast:"+
				" ticks diff %d = %s time  diff %s => faster with %d ticks\n",
				runTicks.Val(), wt.Duration(runTicks), runTime, faster.Val())
		}
	}
	diff := usDuration(now - wt.lastTickUs)
	if diff < wt.tickDuration {
		// to little time has passed
		return 0
	}
	ticks, rest := wt.Ticks(diff)

	wt.lastTickUs = now - int64(rest/time.Microsecond)
	wt.advanceTimeTo(wt.Now().Add(ticks))
	return ticks.Val()
}
