package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBedrock struct {
	responses []string
	errs      []error
	calls     int
	lastBody  []byte
}

func (f *fakeBedrock) InvokeModel(_ context.Context, params *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	i := f.calls
	f.calls++
	f.lastBody = params.Body
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	text := f.responses[min(i, len(f.responses)-1)]
	body, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return &bedrockruntime.InvokeModelOutput{Body: body}, nil
}

func TestInvokeBuildsAnthropicBody(t *testing.T) {
	api := &fakeBedrock{responses: []string{"ok"}}
	c := NewClient(api, "test-model")

	text, err := c.Invoke(context.Background(), "system prompt", []string{"hello"}, [][]byte{{0xff, 0xd8}}, 300)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	var body map[string]any
	require.NoError(t, json.Unmarshal(api.lastBody, &body))
	assert.Equal(t, "bedrock-2023-05-31", body["anthropic_version"])
	assert.Equal(t, float64(0), body["temperature"])
	assert.Equal(t, float64(300), body["max_tokens"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "text", content[0].(map[string]any)["type"])
	assert.Equal(t, "image", content[1].(map[string]any)["type"])
}

func TestInvokeRetriesTransientErrors(t *testing.T) {
	api := &fakeBedrock{
		errs:      []error{errors.New("throttled"), errors.New("throttled")},
		responses: []string{"", "", "recovered"},
	}
	c := NewClient(api, "test-model")
	c.backoffBase = time.Millisecond

	text, err := c.Invoke(context.Background(), "", []string{"hi"}, nil, 100)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 3, api.calls)
}

func TestInvokeRequiresContent(t *testing.T) {
	c := NewClient(&fakeBedrock{responses: []string{"x"}}, "test-model")
	_, err := c.Invoke(context.Background(), "sys", nil, nil, 100)
	require.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"wrapped in prose", "Here you go:\n```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"no object", "sorry, I cannot", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCaptionWindowClampsScore(t *testing.T) {
	api := &fakeBedrock{responses: []string{`{"caption":"a goal is scored","highlight_score":1.4}`}}
	cap := NewCaptioner(NewClient(api, "test-model"))

	got, err := cap.CaptionWindow(context.Background(), "goal!", nil)
	require.NoError(t, err)
	assert.Equal(t, "a goal is scored", got.Caption)
	assert.Equal(t, 1.0, got.HighlightScore)
}

func TestGroupCaptionsFiltersInvalidIndexes(t *testing.T) {
	api := &fakeBedrock{responses: []string{`{"groups":[{"title":"Goal","indexes":[0,1,9]},{"title":"Empty","indexes":[-1]}]}`}}
	g := NewGrouper(NewClient(api, "test-model"))

	groups, err := g.GroupCaptions(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Goal", groups[0].Title)
	assert.Equal(t, []int{0, 1}, groups[0].Indexes)
}

func TestFallbackGroupSpansBlock(t *testing.T) {
	groups := FallbackGroup([]string{"first caption", "second caption"})
	require.Len(t, groups, 1)
	assert.Equal(t, []int{0, 1}, groups[0].Indexes)
	assert.Equal(t, "first caption", groups[0].Title)
}

func TestEdgePlannerExtractsPlanJSON(t *testing.T) {
	api := &fakeBedrock{responses: []string{"I will keep it.\n{\"action\":\"keep\",\"reason\":\"clean\",\"confidence\":0.9}"}}
	p := NewEdgePlanner(NewClient(api, "test-model"))

	raw, err := p.PlanEdges(context.Background(), "prompt", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"keep","reason":"clean","confidence":0.9}`, raw)
}
