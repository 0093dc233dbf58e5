package llm

import (
	"context"
	"fmt"
)

const captionerSystemPrompt = `You caption short windows of a live video stream.
You receive the window's transcript followed by its sampled frames in order.
Respond with exactly one JSON object: {"caption": "<one sentence describing what happens>", "highlight_score": <number between 0 and 1>}.
The highlight_score reflects how likely a viewer would want this moment in a highlight reel. Score routine or idle moments low.`

// Caption describes one scored candidate window.
type Caption struct {
	Caption        string  `json:"caption"`
	HighlightScore float64 `json:"highlight_score"`
}

// Captioner obtains a caption and a semantic highlight score for one
// candidate window.
type Captioner struct {
	client *Client
}

// NewCaptioner creates a Captioner.
func NewCaptioner(client *Client) *Captioner {
	if client == nil {
		panic("NewCaptioner: client must not be nil")
	}
	return &Captioner{client: client}
}

// CaptionWindow sends the transcript and frames of one window and returns
// the model's caption and highlight score, clamped into [0, 1].
func (c *Captioner) CaptionWindow(ctx context.Context, transcript string, images [][]byte) (*Caption, error) {
	var texts []string
	if transcript != "" {
		texts = append(texts, transcript)
	} else {
		texts = append(texts, "(no speech in this window)")
	}

	var out Caption
	if err := c.client.InvokeJSON(ctx, captionerSystemPrompt, texts, images, 500, &out); err != nil {
		return nil, fmt.Errorf("captioner failed: %w", err)
	}

	if out.HighlightScore < 0 {
		out.HighlightScore = 0
	}
	if out.HighlightScore > 1 {
		out.HighlightScore = 1
	}
	return &out, nil
}
