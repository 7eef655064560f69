package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
	"github.com/openveil/pii-gateway/internal/logger"
	"github.com/openveil/pii-gateway/internal/policy"
	"github.com/openveil/pii-gateway/internal/provider"
	"github.com/openveil/pii-gateway/internal/sanitize"
	"github.com/openveil/pii-gateway/internal/usage"
)

// fakeProvider echoes the user message back and records what it was called
// with, so tests can assert on the exact text that left the gateway.
type fakeProvider struct {
	calls     int
	gotSystem string
	gotUser   string
	reply     func(systemPrompt, userMessage string) (string, error)
}

func (f *fakeProvider) Resolve(explicitProvider string, isLocal bool) (provider.Target, error) {
	if isLocal && explicitProvider == "" {
		return provider.Target{Name: "local", Local: true}, nil
	}
	name := explicitProvider
	if name == "" {
		name = "external"
	}
	return provider.Target{Name: name}, nil
}

func (f *fakeProvider) Generate(ctx context.Context, target provider.Target, systemPrompt, userMessage string) (string, error) {
	f.calls++
	f.gotSystem = systemPrompt
	f.gotUser = userMessage
	if f.reply != nil {
		return f.reply(systemPrompt, userMessage)
	}
	return userMessage, nil
}

// captureRecorder keeps the last usage record for assertions.
type captureRecorder struct {
	last *usage.Record
}

func (c *captureRecorder) Record(ctx context.Context, record *usage.Record) error {
	c.last = record
	return nil
}

func (c *captureRecorder) Close() error { return nil }

type testSource struct{}

func (testSource) LoadPatterns(ctx context.Context) ([]catalog.PatternDefinition, error) {
	return []catalog.PatternDefinition{
		{ID: "ssn", Name: "Social Security Number", Regex: `\b\d{3}-\d{2}-\d{4}\b`, DataType: "ssn", Severity: "showstopper"},
		{ID: "email", Name: "Email Address", Regex: `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`, DataType: "email", Severity: "pseudonymizer"},
	}, nil
}

func (testSource) LoadDictionary(ctx context.Context) ([]catalog.DictionaryEntry, error) {
	return []catalog.DictionaryEntry{
		{OriginalValue: "Project Aurora", Pseudonym: "Project Zephyr", DataType: "project_name", Category: "internal"},
	}, nil
}

func newTestGateway(t *testing.T, prov *fakeProvider, rec usage.Recorder) *Gateway {
	t.Helper()
	cat, err := catalog.New(context.Background(), testSource{}, 0, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to build catalog: %v", err)
	}
	return New(
		cat,
		classify.New(logger.Nop()),
		policy.NewEngine(true, logger.Nop()),
		prov,
		rec,
		nil,
		logger.Nop(),
	)
}

func TestRoute(t *testing.T) {
	ctx := context.Background()

	t.Run("ShowstopperBlocksBeforeProviderCall", func(t *testing.T) {
		prov := &fakeProvider{}
		rec := &captureRecorder{}
		gw := newTestGateway(t, prov, rec)

		res, err := gw.Route(ctx, "", "my ssn is 123-45-6789", RouteContext{})
		if err != nil {
			t.Fatalf("Route returned error: %v", err)
		}
		if res.State != StateBlocked {
			t.Fatalf("State = %s, want blocked", res.State)
		}
		if prov.calls != 0 {
			t.Error("Provider was called for a blocked request")
		}
		if !strings.Contains(res.Refusal, "ssn") {
			t.Errorf("Refusal does not name the data type: %q", res.Refusal)
		}
		if strings.Contains(res.Refusal, "123-45-6789") {
			t.Error("Refusal leaks the matched value")
		}
		if rec.last == nil || rec.last.Decision != "blocked" || !rec.last.ShowstopperDetected {
			t.Errorf("Usage record = %+v", rec.last)
		}
	})

	t.Run("TrustedLocalBypassesUntouched", func(t *testing.T) {
		prov := &fakeProvider{}
		rec := &captureRecorder{}
		gw := newTestGateway(t, prov, rec)

		msg := "my ssn is 123-45-6789 and email a@x.com"
		res, err := gw.Route(ctx, "sys", msg, RouteContext{IsLocalProvider: true})
		if err != nil {
			t.Fatalf("Route returned error: %v", err)
		}
		if res.State != StateBypassed {
			t.Fatalf("State = %s, want bypassed", res.State)
		}
		if prov.gotUser != msg || prov.gotSystem != "sys" {
			t.Errorf("Bypass transformed the prompts: %q / %q", prov.gotSystem, prov.gotUser)
		}
		if rec.last.Decision != "bypassed" {
			t.Errorf("Usage decision = %s", rec.last.Decision)
		}
	})

	t.Run("ExplicitProviderDisablesBypass", func(t *testing.T) {
		prov := &fakeProvider{}
		gw := newTestGateway(t, prov, &captureRecorder{})

		res, err := gw.Route(ctx, "", "ssn 123-45-6789", RouteContext{
			IsLocalProvider:  true,
			ExplicitProvider: "openai",
		})
		if err != nil {
			t.Fatalf("Route returned error: %v", err)
		}
		if res.State != StateBlocked {
			t.Fatalf("State = %s, want blocked", res.State)
		}
	})

	t.Run("SanitizedRoundTrip", func(t *testing.T) {
		prov := &fakeProvider{}
		rec := &captureRecorder{}
		gw := newTestGateway(t, prov, rec)

		msg := "reach a@x.com about Project Aurora"
		res, err := gw.Route(ctx, "", msg, RouteContext{})
		if err != nil {
			t.Fatalf("Route returned error: %v", err)
		}
		if res.State != StateCompleted {
			t.Fatalf("State = %s, want completed", res.State)
		}
		if strings.Contains(prov.gotUser, "a@x.com") || strings.Contains(prov.gotUser, "Project Aurora") {
			t.Errorf("Sensitive values left the gateway: %q", prov.gotUser)
		}
		// The fake echoes the sanitized text, so reversal must restore
		// the original message exactly.
		if res.FinalText != msg {
			t.Errorf("FinalText = %q, want %q", res.FinalText, msg)
		}
		if res.ReversalCount == 0 {
			t.Error("No reversals counted")
		}
		if rec.last.Decision != "sanitized" || !rec.last.DataSanitizationApplied {
			t.Errorf("Usage record = %+v", rec.last)
		}
		if rec.last.SanitizationLevel != "standard" {
			t.Errorf("SanitizationLevel = %s, want standard", rec.last.SanitizationLevel)
		}
	})

	t.Run("CleanTextSanitizedPath", func(t *testing.T) {
		prov := &fakeProvider{}
		rec := &captureRecorder{}
		gw := newTestGateway(t, prov, rec)

		res, err := gw.Route(ctx, "", "nothing sensitive here", RouteContext{})
		if err != nil {
			t.Fatalf("Route returned error: %v", err)
		}
		if res.State != StateCompleted {
			t.Fatalf("State = %s", res.State)
		}
		if res.Outcome.Decision != policy.DecisionSanitized {
			t.Errorf("Decision = %s, want sanitized", res.Outcome.Decision)
		}
		if rec.last.SanitizationLevel != "none" {
			t.Errorf("SanitizationLevel = %s, want none", rec.last.SanitizationLevel)
		}
	})

	t.Run("ProviderFailureKeepsMappings", func(t *testing.T) {
		prov := &fakeProvider{
			reply: func(string, string) (string, error) {
				return "", errors.New("connection refused")
			},
		}
		gw := newTestGateway(t, prov, &captureRecorder{})

		res, err := gw.Route(ctx, "", "reach a@x.com now", RouteContext{})
		if err == nil {
			t.Fatal("Expected error from failed provider call")
		}
		if res.State != StateFailed {
			t.Fatalf("State = %s, want failed", res.State)
		}
		if res.SanitizedUserMessage == "" || len(res.Mappings) == 0 {
			t.Error("Failed result must retain sanitized text and mappings for retry")
		}
		rev := sanitize.Reverse(res.SanitizedUserMessage, res.Mappings)
		if rev.OriginalText != "reach a@x.com now" {
			t.Errorf("Retained mappings do not reverse: %q", rev.OriginalText)
		}
	})
}

func TestClassifyAndSanitizeHelpers(t *testing.T) {
	gw := newTestGateway(t, &fakeProvider{}, &captureRecorder{})

	t.Run("Classify", func(t *testing.T) {
		matches, err := gw.Classify("mail a@x.com")
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if len(matches) != 1 || matches[0].DataType != "email" {
			t.Errorf("Matches = %+v", matches)
		}
	})

	t.Run("SanitizeText", func(t *testing.T) {
		res, err := gw.SanitizeText("mail a@x.com")
		if err != nil {
			t.Fatalf("SanitizeText failed: %v", err)
		}
		if res.SanitizedText != "mail [EMAIL_REDACTED]" {
			t.Errorf("SanitizedText = %q", res.SanitizedText)
		}
		if len(res.Mappings) != 1 {
			t.Errorf("Mappings = %+v", res.Mappings)
		}
	})
}
