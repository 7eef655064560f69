package gateway

import (
	"github.com/openveil/pii-gateway/internal/policy"
	"github.com/openveil/pii-gateway/internal/sanitize"
)

// State is one vertex of the per-request routing state machine. All states
// are traversed synchronously within one request; there is no cross-request
// state.
type State string

const (
	// StateEvaluating is the initial classification and decision phase.
	StateEvaluating State = "evaluating"
	// StateBlocked is terminal: the request was refused before any
	// provider call.
	StateBlocked State = "blocked"
	// StateBypassed is terminal: a trusted local provider handled the
	// untransformed request.
	StateBypassed State = "bypassed"
	// StateSanitizing is the forward-transform phase.
	StateSanitizing State = "sanitizing"
	// StateCallingProvider is the only state that performs network I/O.
	StateCallingProvider State = "calling_provider"
	// StateReversing restores placeholders in the provider response.
	StateReversing State = "reversing"
	// StateCompleted is the terminal success state of the sanitize path.
	StateCompleted State = "completed"
	// StateFailed is terminal: the provider call failed. The result still
	// carries the sanitized text and mappings so a retry can reuse them
	// without reclassifying.
	StateFailed State = "failed"
)

// RouteContext carries the caller-side routing facts.
type RouteContext struct {
	IsLocalProvider  bool   `json:"isLocalProvider"`
	ExplicitProvider string `json:"explicitProvider,omitempty"`
}

// RouteResult is the terminal outcome of one routed request.
type RouteResult struct {
	RequestID string                 `json:"requestId"`
	State     State                  `json:"state"`
	Outcome   policy.RoutingOutcome  `json:"outcome"`
	Provider  string                 `json:"provider,omitempty"`
	FinalText string                 `json:"finalText,omitempty"`
	Refusal   string                 `json:"refusal,omitempty"`
	Sanitization *sanitize.Result    `json:"sanitization,omitempty"`

	// Retry support on StateFailed: the sanitized prompts and mappings
	// survive so the same request can be resent without reclassifying.
	SanitizedSystemPrompt string             `json:"sanitizedSystemPrompt,omitempty"`
	SanitizedUserMessage  string             `json:"sanitizedUserMessage,omitempty"`
	Mappings              []sanitize.Mapping `json:"mappings,omitempty"`

	ReversalCount    int `json:"reversalCount"`
	PartialReversals int `json:"partialReversals,omitempty"`
}
