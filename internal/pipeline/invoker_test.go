package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tickerlab/internal/engine"
	"tickerlab/internal/gemini"
)

var (
	errRateLimited = errors.New("429 too many requests, slow down")
	errQuota       = errors.New("RESOURCE_EXHAUSTED: quota exceeded for model")
	errAuth        = errors.New("401 unauthorized: API key not valid")
	errTransient   = errors.New("503 service unavailable")
)

func newTestInvoker(client CallClient, maxRetries int) *Invoker {
	return NewInvoker(client, maxRetries, time.Millisecond)
}

func TestInvokerRetriesRateLimitedThenSucceeds(t *testing.T) {
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			if n <= 2 {
				return nil, errRateLimited
			}
			return &gemini.Response{Text: "report"}, nil
		},
	}
	inv := newTestInvoker(client, 3)

	resp, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", "fallback", "p")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Text != "report" || resp.UsedFallback {
		t.Errorf("unexpected response: %+v", resp)
	}
	if client.callCount() != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", client.callCount())
	}
}

func TestInvokerQuotaFallsBackToSecondary(t *testing.T) {
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			if modelID == "primary" {
				return nil, errQuota
			}
			return &gemini.Response{Text: "fallback report"}, nil
		},
	}
	inv := newTestInvoker(client, 3)

	resp, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", "fallback", "p")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.UsedFallback || resp.ModelID != "fallback" {
		t.Errorf("expected fallback response, got %+v", resp)
	}
	wantPrefix := FallbackMarker("fallback")
	if !strings.HasPrefix(resp.Text, wantPrefix) {
		t.Errorf("expected marker prefix %q, got %q", wantPrefix, resp.Text)
	}
	if !strings.HasSuffix(resp.Text, "fallback report") {
		t.Errorf("fallback text lost: %q", resp.Text)
	}
	// Quota is not locally retryable: one call per model.
	if got := client.models(); len(got) != 2 || got[0] != "primary" || got[1] != "fallback" {
		t.Errorf("unexpected model sequence %v", got)
	}
}

func TestInvokerQuotaOnBothModels(t *testing.T) {
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			return nil, errQuota
		},
	}
	inv := newTestInvoker(client, 3)

	_, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", "fallback", "p")
	fatal, ok := AsFatal(err)
	if !ok {
		t.Fatalf("expected FatalError, got %v", err)
	}
	if fatal.Kind != FatalQuotaBothModels {
		t.Errorf("expected FatalQuotaBothModels, got %s", fatal.Kind)
	}
	if client.callCount() != 2 {
		t.Errorf("expected 2 attempts, got %d", client.callCount())
	}
}

func TestInvokerAuthFailsImmediately(t *testing.T) {
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			return nil, errAuth
		},
	}
	inv := newTestInvoker(client, 3)

	_, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", "fallback", "p")
	fatal, ok := AsFatal(err)
	if !ok || fatal.Kind != FatalAuth {
		t.Fatalf("expected FatalAuth, got %v", err)
	}
	if client.callCount() != 1 {
		t.Errorf("auth errors must not retry or fall back, got %d attempts", client.callCount())
	}
}

func TestInvokerTransientExhaustionKeepsKind(t *testing.T) {
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			return nil, errTransient
		},
	}
	inv := newTestInvoker(client, 2)

	_, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", "fallback", "p")
	fatal, ok := AsFatal(err)
	if !ok || fatal.Kind != FatalTransient {
		t.Fatalf("expected FatalTransient, got %v", err)
	}
	if client.callCount() != 3 {
		t.Errorf("expected initial attempt plus 2 retries, got %d", client.callCount())
	}
}

func TestInvokerRateLimitExhaustionDoesNotFallBack(t *testing.T) {
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			return nil, errRateLimited
		},
	}
	inv := newTestInvoker(client, 1)

	_, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", "fallback", "p")
	fatal, ok := AsFatal(err)
	if !ok || fatal.Kind != FatalRateLimited {
		t.Fatalf("expected FatalRateLimited, got %v", err)
	}
	for _, model := range client.models() {
		if model != "primary" {
			t.Errorf("rate limiting must stay on the primary model, saw %v", client.models())
		}
	}
}

func TestInvokerNoFallbackWhenSameOrUnset(t *testing.T) {
	for _, fallback := range []string{"", "primary"} {
		t.Run("fallback="+fallback, func(t *testing.T) {
			client := &scriptedClient{
				Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
					return nil, errQuota
				},
			}
			inv := newTestInvoker(client, 3)

			_, err := inv.Run(context.Background(), engine.IDComprehensive, "primary", fallback, "p")
			fatal, ok := AsFatal(err)
			if !ok || fatal.Kind != FatalQuota {
				t.Fatalf("expected FatalQuota, got %v", err)
			}
			if client.callCount() != 1 {
				t.Errorf("expected a single attempt, got %d", client.callCount())
			}
		})
	}
}

func TestInvokerWebSearchFollowsEngine(t *testing.T) {
	client := &scriptedClient{}
	inv := newTestInvoker(client, 0)
	ctx := context.Background()

	if _, err := inv.Run(ctx, engine.IDLibrarian, "primary", "", "p"); err != nil {
		t.Fatalf("Run librarian: %v", err)
	}
	if _, err := inv.Run(ctx, engine.IDSynthesizer, "primary", "", "p"); err != nil {
		t.Fatalf("Run synthesizer: %v", err)
	}

	if !client.call(1).WebSearch {
		t.Error("librarian call should request web search")
	}
	if client.call(2).WebSearch {
		t.Error("synthesizer call must not request web search")
	}
}

func TestInvokerUnknownEngine(t *testing.T) {
	client := &scriptedClient{}
	inv := newTestInvoker(client, 0)

	_, err := inv.Run(context.Background(), "nope", "primary", "", "p")
	fatal, ok := AsFatal(err)
	if !ok || fatal.Kind != FatalUnknown {
		t.Fatalf("expected FatalUnknown, got %v", err)
	}
	if client.callCount() != 0 {
		t.Error("unknown engine must not reach the client")
	}
}

func TestInvokerCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{
		Script: func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
			cancel()
			return nil, errRateLimited
		},
	}
	inv := NewInvoker(client, 3, time.Hour)

	_, err := inv.Run(ctx, engine.IDComprehensive, "primary", "", "p")
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in the chain, got %v", err)
	}
	if client.callCount() != 1 {
		t.Errorf("expected no further attempts after cancellation, got %d", client.callCount())
	}
}

func TestUsedFallbackModel(t *testing.T) {
	text := FallbackMarker("gemini-2.5-flash") + "report body"
	model, ok := UsedFallbackModel(text)
	if !ok || model != "gemini-2.5-flash" {
		t.Errorf("expected marker to parse, got %q %v", model, ok)
	}
	if _, ok := UsedFallbackModel("plain report"); ok {
		t.Error("plain text must not parse as a fallback marker")
	}
}
