package policy

import (
	"reflect"
	"testing"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
	"github.com/openveil/pii-gateway/internal/logger"
)

func TestDecide(t *testing.T) {
	engine := NewEngine(true, logger.Nop())

	showstopper := classify.Match{DataType: "ssn", Severity: catalog.SeverityShowstopper}
	email := classify.Match{DataType: "email", Severity: catalog.SeverityPseudonymizer}

	t.Run("ShowstopperBlocks", func(t *testing.T) {
		outcome := engine.Decide([]classify.Match{email, showstopper}, CallContext{})
		if outcome.Decision != DecisionBlocked {
			t.Fatalf("Expected blocked, got %s", outcome.Decision)
		}
		if !outcome.ShowstopperDetected {
			t.Error("ShowstopperDetected not set")
		}
		if !reflect.DeepEqual(outcome.DetectedTypes, []string{"ssn"}) {
			t.Errorf("DetectedTypes = %v, want [ssn]", outcome.DetectedTypes)
		}
	})

	t.Run("ShowstopperTypesDeduplicated", func(t *testing.T) {
		cc := classify.Match{DataType: "credit_card", Severity: catalog.SeverityShowstopper}
		outcome := engine.Decide([]classify.Match{showstopper, cc, showstopper}, CallContext{})
		want := []string{"ssn", "credit_card"}
		if !reflect.DeepEqual(outcome.DetectedTypes, want) {
			t.Errorf("DetectedTypes = %v, want %v", outcome.DetectedTypes, want)
		}
	})

	t.Run("TrustedLocalBypassesShowstopper", func(t *testing.T) {
		outcome := engine.Decide([]classify.Match{showstopper}, CallContext{IsLocalProvider: true})
		if outcome.Decision != DecisionBypassed {
			t.Fatalf("Expected bypassed, got %s", outcome.Decision)
		}
		if outcome.ShowstopperDetected {
			t.Error("Bypass must not report showstoppers")
		}
	})

	t.Run("ExplicitProviderDefeatsBypass", func(t *testing.T) {
		outcome := engine.Decide([]classify.Match{showstopper}, CallContext{
			IsLocalProvider:           true,
			ExplicitProviderRequested: true,
		})
		if outcome.Decision != DecisionBlocked {
			t.Fatalf("Expected blocked, got %s", outcome.Decision)
		}
	})

	t.Run("SanitizedWithMatches", func(t *testing.T) {
		outcome := engine.Decide([]classify.Match{email}, CallContext{})
		if outcome.Decision != DecisionSanitized {
			t.Fatalf("Expected sanitized, got %s", outcome.Decision)
		}
		if !reflect.DeepEqual(outcome.DetectedTypes, []string{"email"}) {
			t.Errorf("DetectedTypes = %v", outcome.DetectedTypes)
		}
	})

	t.Run("SanitizedWithZeroMatches", func(t *testing.T) {
		outcome := engine.Decide(nil, CallContext{})
		if outcome.Decision != DecisionSanitized {
			t.Fatalf("Expected sanitized for clean text, got %s", outcome.Decision)
		}
	})

	t.Run("UntrustedLocalClassifies", func(t *testing.T) {
		untrusting := NewEngine(false, logger.Nop())
		outcome := untrusting.Decide([]classify.Match{showstopper}, CallContext{IsLocalProvider: true})
		if outcome.Decision != DecisionBlocked {
			t.Fatalf("Expected blocked when local trust is disabled, got %s", outcome.Decision)
		}
	})
}
