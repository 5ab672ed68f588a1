// Package gemini wraps the Google Gemini API behind the narrow call
// interface the pipeline consumes: one augmented-generation request in,
// normalized {text, usage, sources} or a typed CallError out.
package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"tickerlab/internal/engine"
	"tickerlab/internal/logging"
)

// Response is the normalized result of one model call.
type Response struct {
	Text    string
	Usage   engine.TokenUsage
	Sources []engine.Source
}

// Client issues augmented-generation requests against the Gemini API.
type Client struct {
	client  *genai.Client
	timeout time.Duration
}

// NewClient creates a Gemini client. timeout bounds each individual call;
// zero means no per-call deadline beyond the caller's context.
func NewClient(ctx context.Context, apiKey string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{client: client, timeout: timeout}, nil
}

// Invoke sends one generation request and normalizes the outcome. With
// webSearch the Google Search tool is attached so responses carry grounding
// citations. Failures come back as *CallError.
func (c *Client) Invoke(ctx context.Context, modelID, prompt string, webSearch bool) (*Response, error) {
	timer := logging.StartTimer(logging.CategoryAPI, "generate_content")
	logging.APIDebug("[Gemini] Invoke: model=%s prompt_len=%d web_search=%v", modelID, len(prompt), webSearch)

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	var cfg *genai.GenerateContentConfig
	if webSearch {
		cfg = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{
				{GoogleSearch: &genai.GoogleSearch{}},
			},
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, modelID, contents, cfg)
	if err != nil {
		cerr := Classify(err)
		logging.APIError("[Gemini] Invoke failed: model=%s kind=%s err=%v", modelID, cerr.Kind, err)
		timer.Stop()
		return nil, cerr
	}

	text := resp.Text()
	if text == "" {
		logging.APIError("[Gemini] Invoke: model=%s returned no text", modelID)
		timer.Stop()
		return nil, &CallError{Kind: KindUnknown, Message: "model returned an empty response"}
	}

	out := &Response{
		Text:    text,
		Usage:   usageFrom(resp),
		Sources: sourcesFrom(resp),
	}

	elapsed := timer.Stop()
	logging.API("[Gemini] Invoke: completed in %v model=%s response_len=%d tokens=%d sources=%d",
		elapsed, modelID, len(out.Text), out.Usage.TotalTokens, len(out.Sources))
	return out, nil
}

// usageFrom extracts token counts, tolerating absent metadata.
func usageFrom(resp *genai.GenerateContentResponse) engine.TokenUsage {
	if resp == nil || resp.UsageMetadata == nil {
		return engine.TokenUsage{}
	}
	um := resp.UsageMetadata
	return engine.TokenUsage{
		PromptTokens:     int(um.PromptTokenCount),
		CompletionTokens: int(um.CandidatesTokenCount),
		TotalTokens:      int(um.TotalTokenCount),
	}
}

// sourcesFrom extracts grounding citations, deduplicated by URI within this
// single call, preserving first-seen order.
func sourcesFrom(resp *genai.GenerateContentResponse) []engine.Source {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata
	if gm == nil || len(gm.GroundingChunks) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(gm.GroundingChunks))
	var sources []engine.Source
	for _, chunk := range gm.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		sources = append(sources, engine.Source{URI: chunk.Web.URI, Title: chunk.Web.Title})
	}
	return sources
}
