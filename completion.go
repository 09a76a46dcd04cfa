// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package teleimport

import (
	"time"
)

// completionSlack is added to the animation's remaining play-through time
// when comparing against the estimated upload remainder, so the handoff errs
// toward finishing with the upload rather than ahead of it.
const completionSlack = time.Second

// CompletionSync decides the instant at which a looping completion animation
// should be told to stop at its next natural boundary, so that the visual
// finish lines up with the real upload finish.
//
// Feed it the aggregate upload fraction each time the animation reports its
// own remaining duration. The trigger is a one-shot latch: once it has fired,
// further observations are inert. Not safe for concurrent use.
type CompletionSync struct {
	estimator *ProgressEstimator
	triggered bool
}

func NewCompletionSync() *CompletionSync {
	return &CompletionSync{estimator: NewProgressEstimator()}
}

// Observe samples the upload progress against the animation's remaining
// play-through duration. It returns true exactly once, at the moment the
// estimated upload remainder fits inside the animation remainder plus slack.
// While the estimator reports unknown throughput, no trigger fires and the
// animation keeps looping.
func (cs *CompletionSync) Observe(progress float64, animationRemaining time.Duration) bool {
	if cs.triggered {
		return false
	}
	remaining, ok := cs.estimator.Update(progress)
	if !ok {
		return false
	}
	if remaining <= animationRemaining+completionSlack {
		cs.triggered = true
		return true
	}
	return false
}

// Force latches the trigger unconditionally. Callers invoke it when the
// upload reaches its terminal done state while the animation is still
// looping. Returns false if the latch had already fired.
func (cs *CompletionSync) Force() bool {
	if cs.triggered {
		return false
	}
	cs.triggered = true
	return true
}

// Triggered reports whether the latch has fired.
func (cs *CompletionSync) Triggered() bool {
	return cs.triggered
}
