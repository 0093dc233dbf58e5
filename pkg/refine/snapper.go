// Package refine adjusts highlight edges: a pure boundary snapper, a
// strict plan parser, and the agentic edge refiner that asks an LLM to
// arbitrate between snapped alternatives and re-executes its decision
// deterministically.
package refine

import (
	"fmt"
	"math"
)

// Source labels which boundary list won an edge.
type Source string

const (
	SourceScene    Source = "scene"
	SourceTopic    Source = "topic"
	SourceOriginal Source = "original"
)

// Priority selects which boundary list each edge consults first.
type Priority string

const (
	SceneFirst Priority = "scene_first"
	TopicFirst Priority = "topic_first"
)

// Budgets are the per-edge maximum shifts when snapping.
type Budgets struct {
	SceneStart float64
	SceneEnd   float64
	Topic      float64
}

// Window is a candidate highlight interval in media seconds.
type Window struct {
	Start float64
	End   float64
}

// Duration returns End - Start.
func (w Window) Duration() float64 { return w.End - w.Start }

// Snapped is a window whose edges have been pulled toward boundaries,
// tagged with the winning source per edge.
type Snapped struct {
	Start       float64
	End         float64
	StartSource Source
	EndSource   Source
}

// Window returns the snapped interval.
func (s Snapped) Window() Window { return Window{Start: s.Start, End: s.End} }

// tieEpsilon is the distance within which two candidates count as tied
// and the directional preference decides.
const tieEpsilon = 0.01

// Snap pulls each edge of w toward the nearest candidate boundary under
// the per-edge shift budgets, never across the window midpoint, then
// applies the duration guards. The start edge prefers candidates in the
// past on a tie, the end edge candidates in the future.
func Snap(w Window, scenes, topics []float64, b Budgets, minLen, maxLen float64, priority Priority) (Snapped, error) {
	if w.End <= w.Start {
		return Snapped{}, fmt.Errorf("window end %v must be greater than start %v", w.Start, w.End)
	}

	mid := (w.Start + w.End) / 2
	out := Snapped{Start: w.Start, End: w.End, StartSource: SourceOriginal, EndSource: SourceOriginal}

	snapEdge := func(t float64, direction string, sceneBudget float64) (float64, Source) {
		first, firstBudget, firstSrc := scenes, sceneBudget, SourceScene
		second, secondBudget, secondSrc := topics, b.Topic, SourceTopic
		if priority == TopicFirst {
			first, firstBudget, firstSrc = topics, b.Topic, SourceTopic
			second, secondBudget, secondSrc = scenes, sceneBudget, SourceScene
		}
		if c, ok := nearest(t, first, firstBudget, mid, direction); ok {
			return c, firstSrc
		}
		if c, ok := nearest(t, second, secondBudget, mid, direction); ok {
			return c, secondSrc
		}
		return t, SourceOriginal
	}

	out.Start, out.StartSource = snapEdge(w.Start, "past", b.SceneStart)
	out.End, out.EndSource = snapEdge(w.End, "future", b.SceneEnd)

	applyDurationGuards(&out, minLen, maxLen)

	out.Start = round3(out.Start)
	out.End = round3(out.End)
	return out, nil
}

// nearest finds the candidate closest to t within maxShift that does not
// cross mid. Candidates tied within tieEpsilon resolve by direction.
func nearest(t float64, candidates []float64, maxShift, mid float64, direction string) (float64, bool) {
	best := 0.0
	bestD := 0.0
	found := false
	for _, c := range candidates {
		d := math.Abs(c - t)
		if d > maxShift {
			continue
		}
		if t <= mid && mid < c {
			continue
		}
		if c < mid && mid <= t {
			continue
		}
		switch {
		case !found || d < bestD-tieEpsilon:
			best, bestD, found = c, d, true
		case math.Abs(d-bestD) <= tieEpsilon:
			if direction == "past" && c <= t && best > t {
				best, bestD = c, d
			} else if direction == "future" && c >= t && best < t {
				best, bestD = c, d
			}
		}
	}
	return best, found
}

// applyDurationGuards restores the duration into [minLen, maxLen],
// preferring to move the edge that did not snap.
func applyDurationGuards(s *Snapped, minLen, maxLen float64) {
	dur := s.End - s.Start
	switch {
	case dur < minLen:
		need := minLen - dur
		switch {
		case s.EndSource == SourceOriginal:
			s.End = math.Min(s.End+need, s.Start+maxLen)
		case s.StartSource == SourceOriginal:
			s.Start = math.Max(s.Start-need, s.End-maxLen)
		default:
			s.Start -= need / 2
			s.End += need / 2
		}
	case dur > maxLen:
		excess := dur - maxLen
		trimStart, trimEnd := excess/2, excess/2
		if s.StartSource != SourceOriginal && s.EndSource == SourceOriginal {
			trimStart, trimEnd = 0, excess
		} else if s.EndSource != SourceOriginal && s.StartSource == SourceOriginal {
			trimStart, trimEnd = excess, 0
		}
		s.Start += trimStart
		s.End -= trimEnd
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
