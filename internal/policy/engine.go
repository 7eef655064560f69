package policy

import (
	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
	"github.com/openveil/pii-gateway/internal/logger"
	"go.uber.org/zap"
)

// Decision is the closed set of routing outcomes.
type Decision string

const (
	// DecisionBlocked refuses the request before any provider call.
	DecisionBlocked Decision = "blocked"
	// DecisionBypassed forwards the request untransformed to a trusted
	// local provider.
	DecisionBypassed Decision = "bypassed"
	// DecisionSanitized transforms the request before forwarding.
	DecisionSanitized Decision = "sanitized"
)

// RoutingOutcome is the result of the policy evaluation.
type RoutingOutcome struct {
	Decision            Decision `json:"decision"`
	ShowstopperDetected bool     `json:"showstopperDetected"`
	DetectedTypes       []string `json:"detectedTypes"`
}

// CallContext carries the request facts the policy needs.
type CallContext struct {
	IsLocalProvider           bool
	ExplicitProviderRequested bool
}

// Engine evaluates classified matches against the routing policy.
type Engine struct {
	trustLocal bool
	logger     *logger.Logger
}

// NewEngine creates a new policy decision engine
func NewEngine(trustLocal bool, log *logger.Logger) *Engine {
	return &Engine{trustLocal: trustLocal, logger: log}
}

// Decide applies the precedence rules:
//
//  1. Local provider with no explicit external provider requested: bypass.
//     Local providers are trusted end to end; no classification result,
//     showstoppers included, changes this.
//  2. Any showstopper match: block. DetectedTypes carries every showstopper
//     data type found, deduplicated.
//  3. Otherwise: sanitize. This branch also covers zero matches, so the
//     pipeline runs uniformly whether or not anything was detected.
func (e *Engine) Decide(matches []classify.Match, ctx CallContext) RoutingOutcome {
	if e.trustLocal && ctx.IsLocalProvider && !ctx.ExplicitProviderRequested {
		return RoutingOutcome{
			Decision:      DecisionBypassed,
			DetectedTypes: []string{},
		}
	}

	showstoppers := showstopperTypes(matches)
	if len(showstoppers) > 0 {
		e.logger.Warn("Showstopper data detected, blocking request",
			zap.Strings("detected_types", showstoppers),
		)
		return RoutingOutcome{
			Decision:            DecisionBlocked,
			ShowstopperDetected: true,
			DetectedTypes:       showstoppers,
		}
	}

	return RoutingOutcome{
		Decision:      DecisionSanitized,
		DetectedTypes: classify.DataTypes(matches),
	}
}

// showstopperTypes returns the deduplicated data types of showstopper
// matches, preserving first-seen order.
func showstopperTypes(matches []classify.Match) []string {
	seen := make(map[string]bool)
	var types []string
	for _, m := range matches {
		if m.Severity != catalog.SeverityShowstopper {
			continue
		}
		if !seen[m.DataType] {
			seen[m.DataType] = true
			types = append(types, m.DataType)
		}
	}
	return types
}
