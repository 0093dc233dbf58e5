package refine

import (
	"encoding/json"
	"fmt"
)

// Action is the edge refiner's decision kind.
type Action string

const (
	ActionKeep        Action = "keep"
	ActionUseTopic    Action = "use_topic"
	ActionUseScene    Action = "use_scene"
	ActionMicroAdjust Action = "micro_adjust"
)

// DeltaRange bounds a micro-adjust delta for one edge.
type DeltaRange struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range.
func (r DeltaRange) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Plan is the refiner's decision. StartDelta and EndDelta are only
// meaningful for micro_adjust.
type Plan struct {
	Action     Action  `json:"action"`
	StartDelta float64 `json:"start_delta,omitempty"`
	EndDelta   float64 `json:"end_delta,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// KeepPlan is the safe default used whenever a plan cannot be trusted.
func KeepPlan(reason string) Plan {
	return Plan{Action: ActionKeep, Reason: reason}
}

// ParsePlan decodes the LLM output strictly. Anything that is not valid
// JSON with a known action, or a micro_adjust whose deltas fall outside
// the configured per-edge ranges, degrades to keep.
func ParsePlan(raw string, startRange, endRange DeltaRange) Plan {
	var p Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return KeepPlan(fmt.Sprintf("unparseable plan: %v", err))
	}

	switch p.Action {
	case ActionKeep, ActionUseTopic, ActionUseScene:
		p.StartDelta = 0
		p.EndDelta = 0
		return p
	case ActionMicroAdjust:
		if !startRange.Contains(p.StartDelta) || !endRange.Contains(p.EndDelta) {
			return KeepPlan(fmt.Sprintf("micro_adjust deltas out of range: start=%v end=%v", p.StartDelta, p.EndDelta))
		}
		return p
	default:
		return KeepPlan(fmt.Sprintf("unknown action %q", p.Action))
	}
}
