package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLatchSetIsIdempotent(t *testing.T) {
	var l Latch
	assert.False(t, l.IsSet())
	l.Set()
	l.Set()
	assert.True(t, l.IsSet())
}

func TestProducersDoneRequiresBothModalities(t *testing.T) {
	latches := &Latches{}
	assert.False(t, latches.ProducersDone())

	latches.VideoProcessor.Set()
	assert.False(t, latches.ProducersDone())

	latches.AudioProcessor.Set()
	assert.True(t, latches.ProducersDone())

	// the scorer latch does not participate
	assert.False(t, latches.ClipScorer.IsSet())
}
