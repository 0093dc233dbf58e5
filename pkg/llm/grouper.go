package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const grouperSystemPrompt = `You split a run of consecutive highlight captions into titled segments.
You receive a numbered list of captions describing adjacent moments of one video.
Respond with exactly one JSON object: {"groups": [{"title": "<short title>", "indexes": [<0-based caption indexes>]}]}.
The groups must cover every index exactly once, in order, and each group must be a contiguous range. Merge captions that describe the same event under one title.`

// Group is one titled contiguous run of caption indexes.
type Group struct {
	Title   string `json:"title"`
	Indexes []int  `json:"indexes"`
}

// Grouper splits a block of adjacent captions into titled subgroups.
type Grouper struct {
	client *Client
}

// NewGrouper creates a Grouper.
func NewGrouper(client *Client) *Grouper {
	if client == nil {
		panic("NewGrouper: client must not be nil")
	}
	return &Grouper{client: client}
}

// GroupCaptions returns the model's ordered titled groups. Groups with no
// valid indexes are dropped; out-of-range indexes are discarded. An error
// or an empty result leaves the caller to fall back to one group spanning
// the whole block.
func (g *Grouper) GroupCaptions(ctx context.Context, captions []string) ([]Group, error) {
	if len(captions) == 0 {
		return nil, fmt.Errorf("no captions to group")
	}

	var b strings.Builder
	for i, c := range captions {
		fmt.Fprintf(&b, "%d: %s\n", i, c)
	}

	var out struct {
		Groups []Group `json:"groups"`
	}
	if err := g.client.InvokeJSON(ctx, grouperSystemPrompt, []string{b.String()}, nil, 500, &out); err != nil {
		return nil, fmt.Errorf("grouper failed: %w", err)
	}

	var groups []Group
	for _, grp := range out.Groups {
		var valid []int
		for _, idx := range grp.Indexes {
			if idx >= 0 && idx < len(captions) {
				valid = append(valid, idx)
			}
		}
		if len(valid) == 0 {
			continue
		}
		groups = append(groups, Group{Title: grp.Title, Indexes: valid})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("grouper returned no usable groups")
	}
	return groups, nil
}

// FallbackGroup spans the whole caption block under a generic title. Used
// when the grouper cannot be trusted.
func FallbackGroup(captions []string) []Group {
	indexes := make([]int, len(captions))
	for i := range captions {
		indexes[i] = i
	}
	title := "Highlight"
	if len(captions) > 0 {
		title = truncateTitle(captions[0])
	}
	return []Group{{Title: title, Indexes: indexes}}
}

func truncateTitle(caption string) string {
	const maxTitle = 60
	caption = strings.TrimSpace(caption)
	if len(caption) <= maxTitle {
		return caption
	}
	return strings.TrimSpace(caption[:maxTitle]) + "..."
}

// UnmarshalJSON tolerates models that return indexes as floats.
func (g *Group) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title   string    `json:"title"`
		Indexes []float64 `json:"indexes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.Title = raw.Title
	g.Indexes = g.Indexes[:0]
	for _, v := range raw.Indexes {
		g.Indexes = append(g.Indexes, int(v))
	}
	return nil
}
