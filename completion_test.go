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

func newTestCompletionSync() (*CompletionSync, *testClock) {
	cs := NewCompletionSync()
	clock := newTestClock()
	cs.estimator.now = clock.Now
	return cs, clock
}

func TestCompletionSync_TriggersWhenEstimatesConverge(t *testing.T) {
	cs, clock := newTestCompletionSync()

	// Fast steady upload: 10% per second. The first samples build the
	// average; the animation still has plenty of loop time left, so the
	// latch must not fire while the estimate exceeds it.
	progress := 0.0
	fired := false
	for i := 0; i < 60 && !fired; i++ {
		progress += 0.1
		if progress > 1 {
			progress = 1
		}
		fired = cs.Observe(progress, 20*time.Second)
		clock.Advance(time.Second)
	}
	require.True(t, fired, "latch should fire once the estimated remainder fits the animation remainder")
	assert.True(t, cs.Triggered())

	// One-shot: later observations are inert even with a huge allowance.
	assert.False(t, cs.Observe(1, time.Hour))
	assert.False(t, cs.Force())
}

func TestCompletionSync_NeverTriggersOnUnknownRate(t *testing.T) {
	cs, clock := newTestCompletionSync()

	// Zero throughput: the estimator never leaves unknown, so the animation
	// keeps looping no matter how small its remainder is.
	for i := 0; i < 50; i++ {
		assert.False(t, cs.Observe(0, time.Millisecond))
		clock.Advance(2 * time.Second)
	}
	assert.False(t, cs.Triggered())

	// When the upload finishes anyway, the caller forces the transition.
	assert.True(t, cs.Force())
	assert.True(t, cs.Triggered())
	assert.False(t, cs.Force())
}

func TestCompletionSync_SlackWindow(t *testing.T) {
	cs, clock := newTestCompletionSync()

	// Prime a steady 1%/s rate so the estimated remainder is well-defined.
	progress := 0.0
	for i := 0; i < 50; i++ {
		cs.Observe(progress, 0)
		progress += 0.01
		clock.Advance(time.Second)
	}
	remaining, ok := cs.estimator.Update(progress)
	require.True(t, ok)

	// An animation remainder just inside the slack window triggers.
	assert.True(t, cs.Observe(progress, remaining-completionSlack/2))
}
