// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock for driving the estimator.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0)}
}

func (tc *testClock) Now() time.Time {
	return tc.now
}

func (tc *testClock) Advance(d time.Duration) {
	tc.now = tc.now.Add(d)
}

func newTestEstimator() (*ProgressEstimator, *testClock) {
	clock := newTestClock()
	estimator := NewProgressEstimator()
	estimator.now = clock.Now
	return estimator, clock
}

func TestProgressEstimator_FirstCallIsUnknown(t *testing.T) {
	estimator, _ := newTestEstimator()
	_, ok := estimator.Update(0)
	assert.False(t, ok)
}

func TestProgressEstimator_ConvergesOnSteadyRamp(t *testing.T) {
	estimator, clock := newTestEstimator()

	// Steady ramp: 1% per second sampled once per second.
	const rate = 0.01
	progress := 0.0
	_, ok := estimator.Update(progress)
	require.False(t, ok)

	var lastEstimate time.Duration
	for i := 0; i < 40; i++ {
		clock.Advance(time.Second)
		progress += rate
		estimate, known := estimator.Update(progress)
		require.True(t, known, "estimate should be known from the second sample on (i=%d)", i)
		if lastEstimate > 0 {
			assert.Less(t, estimate, lastEstimate, "estimates should shrink as the average converges (i=%d)", i)
		}
		lastEstimate = estimate
	}

	// After 40 one-second samples the EWMA has converged most of the way:
	// the estimate is within ~20% of the true remaining time.
	trueRemaining := time.Duration((1 - progress) / rate * float64(time.Second))
	assert.InDelta(t, trueRemaining.Seconds(), lastEstimate.Seconds(), trueRemaining.Seconds()*0.2)
}

func TestProgressEstimator_Hysteresis(t *testing.T) {
	estimator, clock := newTestEstimator()

	// Prime the average with two real samples.
	estimator.Update(0)
	clock.Advance(time.Second)
	estimator.Update(0.05)
	primedRate := estimator.averageRate
	primedProgress := estimator.lastProgress
	require.NotZero(t, primedRate)

	// A tiny sample inside both hysteresis thresholds must not touch the
	// stored sample or the running average.
	clock.Advance(500 * time.Millisecond)
	estimate, ok := estimator.Update(0.055)
	assert.Equal(t, primedRate, estimator.averageRate)
	assert.Equal(t, primedProgress, estimator.lastProgress)

	// The caller still gets an estimate, computed from the stale average.
	require.True(t, ok)
	assert.Greater(t, estimate, time.Duration(0))
}

func TestProgressEstimator_StaleSampleAgeForcesUpdate(t *testing.T) {
	estimator, clock := newTestEstimator()

	estimator.Update(0)
	clock.Advance(time.Second)
	estimator.Update(0.05)
	primedRate := estimator.averageRate

	// Progress delta below the threshold, but the sample is old enough that
	// the age limit forces a blend.
	clock.Advance(1500 * time.Millisecond)
	estimator.Update(0.055)
	assert.NotEqual(t, primedRate, estimator.averageRate)
	assert.Equal(t, 0.055, estimator.lastProgress)
}

func TestProgressEstimator_StallDecaysToUnknown(t *testing.T) {
	estimator, clock := newTestEstimator()

	estimator.Update(0)
	clock.Advance(time.Second)
	_, ok := estimator.Update(0.05)
	require.True(t, ok)

	// A stalled upload emits no progress; repeated stale samples decay the
	// average toward zero until the estimator gives up.
	unknown := false
	for i := 0; i < 200; i++ {
		clock.Advance(2 * time.Second)
		if _, known := estimator.Update(0.05); !known {
			unknown = true
			break
		}
	}
	assert.True(t, unknown, "average rate should decay below the usable floor")
}
