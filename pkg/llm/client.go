// Package llm wraps the Bedrock runtime behind the three JSON callables
// the pipeline needs: the captioner, the grouper, and the edge planner.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"
)

const (
	anthropicVersion = "bedrock-2023-05-31"

	invokeRetries     = 5
	invokeBackoffBase = 5 * time.Second
)

// BedrockAPI is the slice of the Bedrock runtime the client uses.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client invokes one Bedrock model with text and JPEG content at
// temperature 0 and retries transient failures with backoff.
type Client struct {
	api         BedrockAPI
	modelID     string
	backoffBase time.Duration
}

// NewClient creates a Client for the given model.
func NewClient(api BedrockAPI, modelID string) *Client {
	if api == nil {
		panic("NewClient: api must not be nil")
	}
	if modelID == "" {
		panic("NewClient: modelID must not be empty")
	}
	return &Client{api: api, modelID: modelID, backoffBase: invokeBackoffBase}
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type invokeBody struct {
	Messages         []message      `json:"messages"`
	System           []contentBlock `json:"system"`
	MaxTokens        int            `json:"max_tokens"`
	Temperature      float64        `json:"temperature"`
	AnthropicVersion string         `json:"anthropic_version"`
}

type invokeOutput struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Invoke sends one user turn built from texts and JPEG images and returns
// the model's text output.
func (c *Client) Invoke(ctx context.Context, system string, texts []string, images [][]byte, maxTokens int) (string, error) {
	var content []contentBlock
	for _, t := range texts {
		if t == "" {
			continue
		}
		content = append(content, contentBlock{Type: "text", Text: t})
	}
	for _, img := range images {
		content = append(content, contentBlock{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: "image/jpeg",
				Data:      base64.StdEncoding.EncodeToString(img),
			},
		})
	}
	if len(content) == 0 {
		return "", fmt.Errorf("invoke requires at least one text or image block")
	}

	body, err := json.Marshal(invokeBody{
		Messages:         []message{{Role: "user", Content: content}},
		System:           []contentBlock{{Type: "text", Text: system}},
		MaxTokens:        maxTokens,
		Temperature:      0,
		AnthropicVersion: anthropicVersion,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal model request: %w", err)
	}

	var text string
	operation := func() error {
		slog.Info("Invoking model", "model_id", c.modelID)
		resp, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(c.modelID),
			Body:        body,
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
		})
		if err != nil {
			slog.Warn("Model invocation failed", "model_id", c.modelID, "error", err)
			return err
		}

		var out invokeOutput
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse model response: %w", err))
		}
		if len(out.Content) == 0 {
			return fmt.Errorf("model returned no content")
		}
		text = out.Content[0].Text
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffBase
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, invokeRetries-1), ctx)); err != nil {
		return "", fmt.Errorf("model invocation failed after %d attempts: %w", invokeRetries, err)
	}
	return text, nil
}

// InvokeJSON invokes the model and decodes the JSON object embedded in
// its text output into out.
func (c *Client) InvokeJSON(ctx context.Context, system string, texts []string, images [][]byte, maxTokens int, out any) error {
	text, err := c.Invoke(ctx, system, texts, images, maxTokens)
	if err != nil {
		return err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to decode model JSON: %w", err)
	}
	return nil
}

// ExtractJSON pulls the outermost JSON object out of free-form model
// text. Models occasionally wrap the object in prose or code fences.
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	return text[start : end+1], nil
}
