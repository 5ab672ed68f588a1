// Package pipeline runs the multi-engine analysis workflows: retrying
// model invocation with quota fallback, the quick/comparison/deep
// orchestrations and the sentinel-based update pass.
package pipeline

import (
	"errors"
	"fmt"

	"tickerlab/internal/gemini"
)

// FatalKind classifies workflow-ending failures.
type FatalKind int

const (
	FatalUnknown FatalKind = iota
	FatalAuth
	FatalQuota
	FatalQuotaBothModels
	FatalRateLimited
	FatalTransient
	FatalQuorum
	FatalPrecondition
)

// String returns the stable name of the kind.
func (k FatalKind) String() string {
	switch k {
	case FatalAuth:
		return "auth"
	case FatalQuota:
		return "quota"
	case FatalQuotaBothModels:
		return "quota_both_models"
	case FatalRateLimited:
		return "rate_limited"
	case FatalTransient:
		return "transient"
	case FatalQuorum:
		return "quorum"
	case FatalPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// FatalError aborts a workflow. Stage names the engine that failed, empty
// for failures not tied to a single engine (quorum, preconditions).
type FatalError struct {
	Kind    FatalKind
	Stage   string
	Message string
	Err     error
}

func (e *FatalError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s stage failed (%s): %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("workflow failed (%s): %s", e.Kind, e.Message)
}

func (e *FatalError) Unwrap() error { return e.Err }

// UserMessage renders the failure for the terminal, without provider
// wording the user cannot act on.
func (e *FatalError) UserMessage() string {
	switch e.Kind {
	case FatalAuth:
		return "Authentication with the model provider failed. Check your API key."
	case FatalQuotaBothModels:
		return "Both the primary and fallback models are out of quota. Try again later."
	case FatalQuota:
		return "The model quota is exhausted. Try again later."
	case FatalRateLimited:
		return "The model provider kept rate limiting this analysis. Try again in a few minutes."
	case FatalTransient:
		return "The model provider could not be reached. Check your connection and try again."
	case FatalQuorum:
		return "Too few specialist analyses succeeded to build a reliable report."
	default:
		return e.Message
	}
}

// AsFatal extracts a FatalError from an error chain.
func AsFatal(err error) (*FatalError, bool) {
	var fe *FatalError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// fatalFromCall converts an exhausted or non-retryable call failure into
// the workflow-level error.
func fatalFromCall(stage string, callErr *gemini.CallError) *FatalError {
	kind := FatalUnknown
	switch callErr.Kind {
	case gemini.KindAuth:
		kind = FatalAuth
	case gemini.KindQuotaExceeded:
		kind = FatalQuota
	case gemini.KindRateLimited:
		kind = FatalRateLimited
	case gemini.KindTransientNetwork:
		kind = FatalTransient
	}
	return &FatalError{Kind: kind, Stage: stage, Message: callErr.Message, Err: callErr}
}
