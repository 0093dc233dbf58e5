// Package pipeline contains the processing stages of one stream run: the
// modality workers, the transcription driver, the candidate scorer, the
// highlight assembler, and the lifecycle controller that sequences them.
package pipeline

import "sync/atomic"

// Latch is a one-way completion flag. A stage sets its own latch when it
// has processed all work it will ever process; downstream stages read it
// to decide between waiting and draining.
type Latch struct {
	done atomic.Bool
}

// Set trips the latch. Idempotent.
func (l *Latch) Set() { l.done.Store(true) }

// IsSet reports whether the latch has been tripped.
func (l *Latch) IsSet() bool { return l.done.Load() }

// Latches is the completion flag set shared across one run. Upstream
// latches are only ever set by the owning stage or by the controller
// during shutdown.
type Latches struct {
	VideoProcessor Latch
	AudioProcessor Latch
	ClipScorer     Latch
}

// ProducersDone reports whether both modality workers have finished.
func (l *Latches) ProducersDone() bool {
	return l.VideoProcessor.IsSet() && l.AudioProcessor.IsSet()
}
