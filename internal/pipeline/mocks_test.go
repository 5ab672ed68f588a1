package pipeline

import (
	"context"
	"sync"

	"tickerlab/internal/engine"
	"tickerlab/internal/gemini"
)

// --- scriptedClient ---

// scriptedClient records every model call and answers from a script keyed
// by 1-based call index.
type scriptedClient struct {
	mu     sync.Mutex
	calls  []invokeCall
	Script func(n int, modelID, prompt string, webSearch bool) (*gemini.Response, error)
}

type invokeCall struct {
	ModelID   string
	Prompt    string
	WebSearch bool
}

func (c *scriptedClient) Invoke(ctx context.Context, modelID, prompt string, webSearch bool) (*gemini.Response, error) {
	c.mu.Lock()
	c.calls = append(c.calls, invokeCall{ModelID: modelID, Prompt: prompt, WebSearch: webSearch})
	n := len(c.calls)
	c.mu.Unlock()

	if c.Script != nil {
		return c.Script(n, modelID, prompt, webSearch)
	}
	return &gemini.Response{Text: "ok"}, nil
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *scriptedClient) call(n int) invokeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[n-1]
}

func (c *scriptedClient) models() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, call := range c.calls {
		out[i] = call.ModelID
	}
	return out
}

// --- recordingObserver ---

type observedStage struct {
	EngineID string
	Status   string
}

type recordingObserver struct {
	mu     sync.Mutex
	stages []observedStage
}

func (r *recordingObserver) observe() StageObserver {
	return func(run engine.Run) {
		r.mu.Lock()
		r.stages = append(r.stages, observedStage{EngineID: run.EngineID, Status: run.Status.String()})
		r.mu.Unlock()
	}
}

func (r *recordingObserver) all() []observedStage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observedStage, len(r.stages))
	copy(out, r.stages)
	return out
}
