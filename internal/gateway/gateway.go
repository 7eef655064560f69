package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
	"github.com/openveil/pii-gateway/internal/events"
	"github.com/openveil/pii-gateway/internal/logger"
	"github.com/openveil/pii-gateway/internal/policy"
	"github.com/openveil/pii-gateway/internal/provider"
	"github.com/openveil/pii-gateway/internal/sanitize"
	"github.com/openveil/pii-gateway/internal/usage"
)

// ErrCatalogUnavailable is returned when no pattern snapshot has been loaded.
// Routes that would classify fail closed on it.
var ErrCatalogUnavailable = errors.New("pattern catalog unavailable")

// ProviderClient is the provider surface the gateway depends on. It is
// satisfied by provider.Client and by fakes in tests.
type ProviderClient interface {
	provider.Generator
	Resolve(explicitProvider string, isLocal bool) (provider.Target, error)
}

// Gateway drives one request through classification, policy, sanitization,
// the provider call, and reversal. It holds no per-request state; every
// Mapping lives and dies inside a single Route call.
type Gateway struct {
	catalog    *catalog.Catalog
	classifier *classify.Classifier
	policy     *policy.Engine
	providers  ProviderClient
	recorder   usage.Recorder
	hub        *events.Hub
	logger     *logger.Logger
}

// New creates a routing gateway. The hub may be nil when event broadcasting
// is disabled.
func New(cat *catalog.Catalog, cls *classify.Classifier, pol *policy.Engine, prov ProviderClient, rec usage.Recorder, hub *events.Hub, log *logger.Logger) *Gateway {
	if rec == nil {
		rec = usage.NopRecorder{}
	}
	return &Gateway{
		catalog:    cat,
		classifier: cls,
		policy:     pol,
		providers:  prov,
		recorder:   rec,
		hub:        hub,
		logger:     log.WithComponent("gateway"),
	}
}

// Route processes one request end to end and returns its terminal state.
// The returned error is non-nil only for StateFailed; blocked requests are
// a normal outcome, not an error.
func (g *Gateway) Route(ctx context.Context, systemPrompt, userMessage string, rctx RouteContext) (*RouteResult, error) {
	requestID := uuid.NewString()
	log := g.logger.WithRequestID(requestID)
	start := time.Now()

	res := &RouteResult{RequestID: requestID, State: StateEvaluating}

	target, err := g.providers.Resolve(rctx.ExplicitProvider, rctx.IsLocalProvider)
	if err != nil {
		res.State = StateFailed
		return res, fmt.Errorf("failed to resolve provider: %w", err)
	}
	res.Provider = target.Name

	callCtx := policy.CallContext{
		IsLocalProvider:           target.Local,
		ExplicitProviderRequested: rctx.ExplicitProvider != "",
	}

	// A trusted local route skips classification entirely, so probe the
	// policy with zero matches before touching the catalog.
	if g.policy.Decide(nil, callCtx).Decision == policy.DecisionBypassed {
		return g.routeBypassed(ctx, log, start, target, systemPrompt, userMessage, res)
	}

	snap, ok := g.catalog.Current()
	if !ok {
		// Fail closed: without patterns we cannot prove the request is
		// safe to forward off-host.
		res.State = StateBlocked
		res.Outcome = policy.RoutingOutcome{Decision: policy.DecisionBlocked}
		res.Refusal = "request blocked: " + ErrCatalogUnavailable.Error()
		log.Warn("Blocking request, catalog unavailable")
		g.finish(ctx, log, start, res)
		return res, nil
	}

	sysMatches := g.classifier.Classify(snap, systemPrompt)
	userMatches := g.classifier.Classify(snap, userMessage)
	all := make([]classify.Match, 0, len(sysMatches)+len(userMatches))
	all = append(all, sysMatches...)
	all = append(all, userMatches...)

	outcome := g.policy.Decide(all, callCtx)
	res.Outcome = outcome

	g.logger.LogDetection(requestID, classify.DataTypes(all), len(all), outcome.ShowstopperDetected)
	g.hub.BroadcastEvent(events.Event{
		Type:      events.EventTypeDetection,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: events.DetectionEvent{
			RequestID:   requestID,
			DataTypes:   classify.DataTypes(all),
			MatchCount:  len(all),
			Showstopper: outcome.ShowstopperDetected,
		},
	})

	if outcome.Decision == policy.DecisionBlocked {
		res.State = StateBlocked
		res.Refusal = refusalMessage(outcome.DetectedTypes)
		g.finish(ctx, log, start, res)
		return res, nil
	}

	res.State = StateSanitizing
	session := sanitize.NewSession()
	sanSystem := session.Sanitize(systemPrompt, sysMatches)
	sanUser := session.Sanitize(userMessage, userMatches)
	sres := session.Result(sanUser)

	res.Sanitization = &sres
	res.SanitizedSystemPrompt = sanSystem
	res.SanitizedUserMessage = sanUser
	res.Mappings = sres.Mappings

	res.State = StateCallingProvider
	reply, err := g.providers.Generate(ctx, target, sanSystem, sanUser)
	if err != nil {
		// Keep the sanitized prompts and mappings so the caller can
		// retry without reclassifying.
		res.State = StateFailed
		g.finish(ctx, log, start, res)
		return res, fmt.Errorf("provider call failed: %w", err)
	}

	res.State = StateReversing
	rev := sanitize.Reverse(reply, sres.Mappings)
	res.FinalText = rev.OriginalText
	res.ReversalCount = rev.ReversalCount
	res.PartialReversals = rev.PartialCount

	res.State = StateCompleted
	g.finish(ctx, log, start, res)
	return res, nil
}

func (g *Gateway) routeBypassed(ctx context.Context, log *logger.Logger, start time.Time, target provider.Target, systemPrompt, userMessage string, res *RouteResult) (*RouteResult, error) {
	res.Outcome = policy.RoutingOutcome{Decision: policy.DecisionBypassed}
	res.State = StateCallingProvider

	reply, err := g.providers.Generate(ctx, target, systemPrompt, userMessage)
	if err != nil {
		res.State = StateFailed
		g.finish(ctx, log, start, res)
		return res, fmt.Errorf("provider call failed: %w", err)
	}

	res.State = StateBypassed
	res.FinalText = reply
	g.finish(ctx, log, start, res)
	return res, nil
}

// finish records usage, emits the route event, and logs the terminal state.
func (g *Gateway) finish(ctx context.Context, log *logger.Logger, start time.Time, res *RouteResult) {
	record := &usage.Record{
		RequestID:           res.RequestID,
		Decision:            string(res.Outcome.Decision),
		Provider:            res.Provider,
		ShowstopperDetected: res.Outcome.ShowstopperDetected,
		PIIDetected:         len(res.Outcome.DetectedTypes) > 0,
		CreatedAt:           time.Now(),
	}
	level := ""
	if s := res.Sanitization; s != nil {
		record.PseudonymsUsed = s.PseudonymsUsed
		record.PseudonymTypes = s.PseudonymTypes
		record.RedactionsApplied = s.RedactionsApplied
		record.RedactionTypes = s.RedactionTypes
		record.DataSanitizationApplied = s.RedactionsApplied > 0 || s.PseudonymsUsed > 0
		record.SanitizationLevel = string(s.SanitizationLevel)
		record.PIIDetected = record.PIIDetected || record.DataSanitizationApplied
		level = string(s.SanitizationLevel)
	}

	if err := g.recorder.Record(ctx, record); err != nil {
		log.Warn("Failed to record usage", zap.Error(err))
	}

	g.logger.LogRouteOutcome(res.RequestID, string(res.Outcome.Decision),
		record.RedactionsApplied, record.PseudonymsUsed, level)

	g.hub.BroadcastEvent(events.Event{
		Type:      events.EventTypeRoute,
		Timestamp: time.Now(),
		RequestID: res.RequestID,
		Data: events.RouteEvent{
			RequestID:         res.RequestID,
			Decision:          string(res.Outcome.Decision),
			State:             string(res.State),
			Provider:          res.Provider,
			SanitizationLevel: level,
			RedactionsApplied: record.RedactionsApplied,
			PseudonymsUsed:    record.PseudonymsUsed,
			DurationMS:        float64(time.Since(start).Microseconds()) / 1000.0,
		},
	})
}

// Classify runs detection only. It fails closed when no snapshot is loaded.
func (g *Gateway) Classify(text string) ([]classify.Match, error) {
	snap, ok := g.catalog.Current()
	if !ok {
		return nil, ErrCatalogUnavailable
	}
	return g.classifier.Classify(snap, text), nil
}

// SanitizeText classifies and sanitizes a single text with a fresh
// request-scoped session, returning the mappings alongside the result.
func (g *Gateway) SanitizeText(text string) (*sanitize.Result, error) {
	snap, ok := g.catalog.Current()
	if !ok {
		return nil, ErrCatalogUnavailable
	}
	matches := g.classifier.Classify(snap, text)
	session := sanitize.NewSession()
	sanitized := session.Sanitize(text, matches)
	result := session.Result(sanitized)
	return &result, nil
}

// Snapshot exposes the current catalog snapshot for status endpoints.
func (g *Gateway) Snapshot() (*catalog.Snapshot, bool) {
	return g.catalog.Current()
}

func refusalMessage(dataTypes []string) string {
	if len(dataTypes) == 0 {
		return "request blocked: non-maskable sensitive data detected"
	}
	return fmt.Sprintf("request blocked: non-maskable sensitive data detected (%s)", strings.Join(dataTypes, ", "))
}
