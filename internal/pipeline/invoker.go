package pipeline

import (
	"context"
	"strings"
	"time"

	"tickerlab/internal/engine"
	"tickerlab/internal/gemini"
	"tickerlab/internal/logging"
)

// CallClient is the single model call the pipeline depends on.
// *gemini.Client satisfies it.
type CallClient interface {
	Invoke(ctx context.Context, modelID, prompt string, webSearch bool) (*gemini.Response, error)
}

// EngineResponse is one successful engine invocation.
type EngineResponse struct {
	Text         string
	Usage        engine.TokenUsage
	Sources      []engine.Source
	ModelID      string
	UsedFallback bool
}

// Invoker wraps a CallClient with the retry and quota-fallback policy:
// rate-limit and transient failures retry with exponential backoff, quota
// exhaustion triggers one full pass on the fallback model, auth failures
// abort immediately.
type Invoker struct {
	client      CallClient
	maxRetries  int
	backoffBase time.Duration
}

// NewInvoker builds an invoker. maxRetries counts extra attempts after the
// first; a negative value disables retries. backoffBase <= 0 selects 2s.
func NewInvoker(client CallClient, maxRetries int, backoffBase time.Duration) *Invoker {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Invoker{client: client, maxRetries: maxRetries, backoffBase: backoffBase}
}

// FallbackMarker returns the machine-readable prefix prepended to output
// produced by the fallback model.
func FallbackMarker(modelID string) string {
	return "[fallback-model: " + modelID + "]\n\n"
}

// UsedFallbackModel parses a fallback marker prefix out of report text.
func UsedFallbackModel(text string) (string, bool) {
	if !strings.HasPrefix(text, "[fallback-model: ") {
		return "", false
	}
	rest := text[len("[fallback-model: "):]
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// Run invokes one engine, applying retries on the primary model and, when
// the primary's quota is exhausted and a distinct fallback is configured,
// one full retry pass on the fallback. The returned error is a *FatalError.
func (inv *Invoker) Run(ctx context.Context, engineID, modelID, fallbackModelID, prompt string) (*EngineResponse, error) {
	eng, ok := engine.ByID(engineID)
	if !ok {
		return nil, &FatalError{Kind: FatalUnknown, Stage: engineID, Message: "unknown engine id"}
	}

	resp, callErr := inv.attempt(ctx, engineID, modelID, prompt, eng.WebSearch)
	if callErr == nil {
		return resp, nil
	}

	if callErr.Kind == gemini.KindQuotaExceeded && fallbackModelID != "" && fallbackModelID != modelID {
		logging.PipelineWarn("[Invoker] %s: quota exhausted on %s, switching to fallback %s", engineID, modelID, fallbackModelID)
		fresp, ferr := inv.attempt(ctx, engineID, fallbackModelID, prompt, eng.WebSearch)
		if ferr == nil {
			fresp.Text = FallbackMarker(fallbackModelID) + fresp.Text
			fresp.UsedFallback = true
			return fresp, nil
		}
		if ferr.Kind == gemini.KindQuotaExceeded {
			return nil, &FatalError{
				Kind:    FatalQuotaBothModels,
				Stage:   engineID,
				Message: "primary and fallback models are both out of quota",
				Err:     ferr,
			}
		}
		return nil, fatalFromCall(engineID, ferr)
	}

	return nil, fatalFromCall(engineID, callErr)
}

// attempt runs the retry loop against a single model. Only rate-limit and
// transient kinds retry; the delay doubles each attempt.
func (inv *Invoker) attempt(ctx context.Context, engineID, modelID, prompt string, webSearch bool) (*EngineResponse, *gemini.CallError) {
	var lastErr *gemini.CallError
	for i := 0; i <= inv.maxRetries; i++ {
		if i > 0 {
			backoff := inv.backoffBase << (i - 1)
			logging.PipelineDebug("[Invoker] %s: retry %d/%d on %s in %v after %s", engineID, i, inv.maxRetries, modelID, backoff, lastErr.Kind)
			select {
			case <-ctx.Done():
				return nil, gemini.Classify(ctx.Err())
			case <-time.After(backoff):
			}
		}

		resp, err := inv.client.Invoke(ctx, modelID, prompt, webSearch)
		if err == nil {
			return &EngineResponse{
				Text:    resp.Text,
				Usage:   resp.Usage,
				Sources: resp.Sources,
				ModelID: modelID,
			}, nil
		}

		callErr := gemini.Classify(err)
		if !callErr.Kind.Retryable() {
			logging.PipelineDebug("[Invoker] %s: %s on %s, not retrying", engineID, callErr.Kind, modelID)
			return nil, callErr
		}
		lastErr = callErr
	}

	logging.PipelineWarn("[Invoker] %s: retries exhausted on %s: %v", engineID, modelID, lastErr)
	return nil, lastErr
}
