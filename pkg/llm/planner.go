package llm

import (
	"context"
)

// EdgePlanner adapts the Bedrock client to the edge refiner's planner
// contract. The refiner supplies the full prompt; the planner only
// forwards it with the frames.
type EdgePlanner struct {
	client *Client
}

// NewEdgePlanner creates an EdgePlanner.
func NewEdgePlanner(client *Client) *EdgePlanner {
	if client == nil {
		panic("NewEdgePlanner: client must not be nil")
	}
	return &EdgePlanner{client: client}
}

// PlanEdges returns the raw plan text for one snapped highlight.
func (p *EdgePlanner) PlanEdges(ctx context.Context, prompt string, images [][]byte) (string, error) {
	text, err := p.client.Invoke(ctx, "", []string{prompt}, images, 300)
	if err != nil {
		return "", err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return "", err
	}
	return raw, nil
}
