package refine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/clipworks/highlighter/pkg/media"
)

// Planner is the LLM that arbitrates between snapped alternatives. It
// receives a prompt plus a handful of edge/mid frames and returns the raw
// plan text.
type Planner interface {
	PlanEdges(ctx context.Context, prompt string, images [][]byte) (string, error)
}

// Options configures the edge refiner and its deterministic executor.
type Options struct {
	MinLen       float64
	MaxLen       float64
	MaxEdgeShift float64 // clamp versus the original (pre-snap) edges
	Budgets      Budgets
	StartDelta   DeltaRange
	EndDelta     DeltaRange
	FPS          float64 // sampled frames per second
}

// Refiner asks the planner for a decision and re-executes it
// deterministically with clamps. It never fails a highlight: any error
// degrades to keeping the snapped window.
type Refiner struct {
	planner Planner
	opts    Options
}

// NewRefiner creates a Refiner.
func NewRefiner(planner Planner, opts Options) *Refiner {
	if planner == nil {
		panic("NewRefiner: planner must not be nil")
	}
	return &Refiner{planner: planner, opts: opts}
}

// Refine builds the context block for one snapped highlight, obtains a
// plan, and executes it. orig is the pre-snap window the clamps are
// anchored to.
func (r *Refiner) Refine(ctx context.Context, orig Window, snapped Snapped, scenes, topics []float64, transcript, frameDir string) Snapped {
	prompt := r.buildPrompt(snapped, scenes, topics, transcript)
	images := r.edgeFrames(frameDir, snapped.Window())

	raw, err := r.planner.PlanEdges(ctx, prompt, images)
	plan := KeepPlan("planner unavailable")
	if err != nil {
		slog.Warn("Edge planner failed, keeping snapped window", "error", err)
	} else {
		plan = ParsePlan(raw, r.opts.StartDelta, r.opts.EndDelta)
	}

	result := r.Execute(plan, orig, snapped, scenes, topics)
	slog.Info("Executed edge plan",
		"action", plan.Action,
		"reason", plan.Reason,
		"start", result.Start,
		"end", result.End)
	return result
}

// Execute applies a plan deterministically. Violating results revert to
// the snapped window.
func (r *Refiner) Execute(plan Plan, orig Window, snapped Snapped, scenes, topics []float64) Snapped {
	switch plan.Action {
	case ActionUseTopic:
		return r.resnap(orig, snapped, scenes, topics, TopicFirst)
	case ActionUseScene:
		return r.resnap(orig, snapped, scenes, topics, SceneFirst)
	case ActionMicroAdjust:
		return r.microAdjust(plan, orig, snapped)
	default:
		return snapped
	}
}

func (r *Refiner) resnap(orig Window, snapped Snapped, scenes, topics []float64, priority Priority) Snapped {
	out, err := Snap(orig, scenes, topics, r.opts.Budgets, r.opts.MinLen, r.opts.MaxLen, priority)
	if err != nil {
		return snapped
	}
	out.Start = clamp(out.Start, orig.Start-r.opts.MaxEdgeShift, orig.Start+r.opts.MaxEdgeShift)
	out.End = clamp(out.End, orig.End-r.opts.MaxEdgeShift, orig.End+r.opts.MaxEdgeShift)
	if !r.validDuration(out.End - out.Start) {
		return snapped
	}
	return out
}

func (r *Refiner) microAdjust(plan Plan, orig Window, snapped Snapped) Snapped {
	mid := (snapped.Start + snapped.End) / 2
	newStart := snapped.Start + plan.StartDelta
	newEnd := snapped.End + plan.EndDelta

	if newStart > mid {
		newStart = snapped.Start
	}
	if newEnd < mid {
		newEnd = snapped.End
	}

	newStart = clamp(newStart, orig.Start-r.opts.MaxEdgeShift, orig.Start+r.opts.MaxEdgeShift)
	newEnd = clamp(newEnd, orig.End-r.opts.MaxEdgeShift, orig.End+r.opts.MaxEdgeShift)

	if !r.validDuration(newEnd - newStart) {
		return snapped
	}
	return Snapped{
		Start:       round3(newStart),
		End:         round3(newEnd),
		StartSource: snapped.StartSource,
		EndSource:   snapped.EndSource,
	}
}

func (r *Refiner) validDuration(dur float64) bool {
	return dur > 0 && dur >= r.opts.MinLen && dur <= r.opts.MaxLen
}

const plannerInstructions = `You adjust the edges of one video highlight.
Given the snapped window, the nearest scene and topic boundaries, a transcript excerpt, and frames around the edges, respond with exactly one JSON object and nothing else:
{"action": "keep"}
{"action": "use_topic"}
{"action": "use_scene"}
{"action": "micro_adjust", "start_delta": <seconds>, "end_delta": <seconds>}
Always include "reason" and "confidence" fields.
Prefer "keep" unless the frames or transcript clearly show the window cutting into or out of the action.`

// buildPrompt assembles the numeric summary and transcript excerpt.
func (r *Refiner) buildPrompt(snapped Snapped, scenes, topics []float64, transcript string) string {
	var b strings.Builder
	b.WriteString(plannerInstructions)
	b.WriteString("\n\nWindow summary:\n")
	fmt.Fprintf(&b, "start=%.3f (source=%s), end=%.3f (source=%s), duration=%.3f\n",
		snapped.Start, snapped.StartSource, snapped.End, snapped.EndSource, snapped.End-snapped.Start)
	fmt.Fprintf(&b, "duration bounds: [%.1f, %.1f] seconds, frame rate: %.2f fps\n", r.opts.MinLen, r.opts.MaxLen, r.opts.FPS)
	fmt.Fprintf(&b, "micro_adjust ranges: start_delta in [%.1f, %.1f], end_delta in [%.1f, %.1f]\n",
		r.opts.StartDelta.Min, r.opts.StartDelta.Max, r.opts.EndDelta.Min, r.opts.EndDelta.Max)

	writeNearest := func(label string, t float64) {
		if c, ok := nearestAny(t, scenes); ok {
			fmt.Fprintf(&b, "nearest scene cut to %s: %.3f (delta %+.3f)\n", label, c, c-t)
		} else {
			fmt.Fprintf(&b, "nearest scene cut to %s: none\n", label)
		}
		if c, ok := nearestAny(t, topics); ok {
			fmt.Fprintf(&b, "nearest topic boundary to %s: %.3f (delta %+.3f)\n", label, c, c-t)
		} else {
			fmt.Fprintf(&b, "nearest topic boundary to %s: none\n", label)
		}
	}
	writeNearest("start", snapped.Start)
	writeNearest("end", snapped.End)

	b.WriteString("\nTranscript excerpt:\n")
	if transcript == "" {
		b.WriteString("(no speech in window)\n")
	} else {
		b.WriteString(transcript)
		b.WriteString("\n")
	}
	return b.String()
}

// edgeFrames loads the frame just before start, the start frame, up to
// three evenly spaced mid frames, the end-minus-one frame, and the frame
// just after end. Missing files are skipped.
func (r *Refiner) edgeFrames(frameDir string, w Window) [][]byte {
	startIdx := int64(math.Floor(w.Start * r.opts.FPS))
	endIdx := int64(math.Floor(w.End * r.opts.FPS))

	indexes := []int64{startIdx - 1, startIdx}
	if span := endIdx - startIdx; span > 1 {
		for i := int64(1); i <= 3; i++ {
			indexes = append(indexes, startIdx+span*i/4)
		}
	}
	indexes = append(indexes, endIdx-1, endIdx+1)

	seen := make(map[int64]bool)
	var images [][]byte
	for _, idx := range indexes {
		if idx < 0 || seen[idx] {
			continue
		}
		seen[idx] = true
		data, err := os.ReadFile(filepath.Join(frameDir, media.FrameFilename(idx)))
		if err != nil {
			continue
		}
		images = append(images, data)
	}
	return images
}

// nearestAny finds the closest candidate to t with no budget.
func nearestAny(t float64, candidates []float64) (float64, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	i := sort.SearchFloat64s(candidates, t)
	best := 0.0
	found := false
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(candidates) {
			continue
		}
		if !found || math.Abs(candidates[j]-t) < math.Abs(best-t) {
			best = candidates[j]
			found = true
		}
	}
	return best, found
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
