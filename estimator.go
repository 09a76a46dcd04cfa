// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"math"
	"time"
)

const (
	// estimatorAlpha is the EWMA blend factor for instantaneous rate samples.
	// Tuned for sub-second-to-second sampling cadence (the caller is expected
	// to sample once per rendered frame, not once per network event).
	estimatorAlpha = 0.05
	// minProgressDelta and maxSampleAge form the hysteresis window: a sample
	// only updates the average when the progress moved by at least the delta
	// or the previous sample is older than the age limit.
	minProgressDelta = 0.01
	maxSampleAge     = time.Second
	// minAverageRate is the floor below which no estimate is produced.
	// Near-zero throughput would otherwise yield meaningless huge estimates.
	minAverageRate = 0.0001
)

// ProgressEstimator converts a monotonic progress fraction sampled over time
// into an estimated remaining duration, using an exponentially weighted
// moving average of the instantaneous progress rate.
//
// One estimator serves one import attempt; discard it and create a new one
// on retry. It is not safe for concurrent use.
type ProgressEstimator struct {
	hasBaseline  bool
	lastTime     time.Time
	lastProgress float64
	averageRate  float64

	// now is replaceable in tests.
	now func() time.Time
}

func NewProgressEstimator() *ProgressEstimator {
	return &ProgressEstimator{now: time.Now}
}

// Update feeds the current progress fraction (in [0,1]) into the estimator
// and returns the estimated remaining duration. The boolean is false while
// the estimate is unknown: on the very first call, and whenever the average
// rate has decayed below the usable floor (e.g. a stalled upload).
func (pe *ProgressEstimator) Update(progress float64) (time.Duration, bool) {
	now := pe.now()
	if !pe.hasBaseline {
		pe.hasBaseline = true
		pe.lastTime = now
		pe.lastProgress = progress
		return 0, false
	}
	elapsed := now.Sub(pe.lastTime)
	delta := progress - pe.lastProgress
	if math.Abs(delta) >= minProgressDelta || elapsed > maxSampleAge {
		if seconds := elapsed.Seconds(); seconds > 0 {
			instantRate := delta / seconds
			pe.averageRate = estimatorAlpha*instantRate + (1-estimatorAlpha)*pe.averageRate
		}
		pe.lastTime = now
		pe.lastProgress = progress
	}
	if pe.averageRate < minAverageRate {
		return 0, false
	}
	return time.Duration((1 - progress) / pe.averageRate * float64(time.Second)), true
}
