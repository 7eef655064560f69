package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/openveil/pii-gateway/internal/logger"
)

// fakeSource serves canned definitions and can be flipped to fail.
type fakeSource struct {
	patterns []PatternDefinition
	dict     []DictionaryEntry
	fail     bool
}

func (f *fakeSource) LoadPatterns(ctx context.Context) ([]PatternDefinition, error) {
	if f.fail {
		return nil, errors.New("source down")
	}
	return f.patterns, nil
}

func (f *fakeSource) LoadDictionary(ctx context.Context) ([]DictionaryEntry, error) {
	if f.fail {
		return nil, errors.New("source down")
	}
	return f.dict, nil
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("BuiltinSourceLoads", func(t *testing.T) {
		cat, err := New(ctx, &BuiltinSource{}, 0, logger.Nop())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		snap, ok := cat.Current()
		if !ok {
			t.Fatal("No snapshot after successful load")
		}
		if len(snap.Patterns) != len(DefaultPatterns()) {
			t.Errorf("Patterns = %d, want %d", len(snap.Patterns), len(DefaultPatterns()))
		}
		if snap.Skipped != 0 {
			t.Errorf("Builtin patterns skipped: %d", snap.Skipped)
		}
	})

	t.Run("InitialLoadFailureIsFatal", func(t *testing.T) {
		if _, err := New(ctx, &fakeSource{fail: true}, 0, logger.Nop()); err == nil {
			t.Fatal("Expected error when the initial load fails")
		}
	})

	t.Run("MalformedDefinitionsSkipped", func(t *testing.T) {
		source := &fakeSource{
			patterns: []PatternDefinition{
				{ID: "ok", Name: "OK", Regex: `\d+`, DataType: "number", Severity: "flagger"},
				{ID: "bad-regex", Name: "Bad", Regex: `[unclosed`, DataType: "x", Severity: "flagger"},
				{ID: "bad-severity", Name: "Bad", Regex: `\w+`, DataType: "x", Severity: "critical"},
			},
		}
		cat, err := New(ctx, source, 0, logger.Nop())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		snap, _ := cat.Current()
		if len(snap.Patterns) != 1 {
			t.Errorf("Patterns = %d, want 1", len(snap.Patterns))
		}
		if snap.Skipped != 2 {
			t.Errorf("Skipped = %d, want 2", snap.Skipped)
		}
	})

	t.Run("RefreshSwapsSnapshot", func(t *testing.T) {
		source := &fakeSource{
			patterns: []PatternDefinition{
				{ID: "one", Name: "One", Regex: `\d+`, DataType: "number", Severity: "flagger"},
			},
		}
		cat, err := New(ctx, source, 0, logger.Nop())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		before, _ := cat.Current()

		source.patterns = append(source.patterns, PatternDefinition{
			ID: "two", Name: "Two", Regex: `\w+`, DataType: "word", Severity: "flagger",
		})
		if err := cat.Refresh(ctx); err != nil {
			t.Fatalf("Refresh failed: %v", err)
		}

		after, _ := cat.Current()
		if len(after.Patterns) != 2 {
			t.Errorf("Patterns after refresh = %d, want 2", len(after.Patterns))
		}
		if len(before.Patterns) != 1 {
			t.Error("Old snapshot mutated by refresh")
		}
		if !after.LoadedAt.After(before.LoadedAt) && !after.LoadedAt.Equal(before.LoadedAt) {
			t.Error("LoadedAt went backwards")
		}
	})

	t.Run("FailedRefreshKeepsSnapshot", func(t *testing.T) {
		source := &fakeSource{
			patterns: []PatternDefinition{
				{ID: "one", Name: "One", Regex: `\d+`, DataType: "number", Severity: "flagger"},
			},
		}
		cat, err := New(ctx, source, 0, logger.Nop())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		source.fail = true
		if err := cat.Refresh(ctx); err == nil {
			t.Fatal("Expected refresh error")
		}
		snap, ok := cat.Current()
		if !ok || len(snap.Patterns) != 1 {
			t.Error("Previous snapshot lost after failed refresh")
		}
	})

	t.Run("RefresherStops", func(t *testing.T) {
		cat, err := New(ctx, &BuiltinSource{}, 10*time.Millisecond, logger.Nop())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		cat.StartRefresher()
		cat.Stop()
	})
}

func TestSeverity(t *testing.T) {
	t.Run("Parse", func(t *testing.T) {
		cases := map[string]Severity{
			"flagger":       SeverityFlagger,
			"pseudonymizer": SeverityPseudonymizer,
			"showstopper":   SeverityShowstopper,
		}
		for in, want := range cases {
			got, err := ParseSeverity(in)
			if err != nil {
				t.Errorf("ParseSeverity(%q) failed: %v", in, err)
			}
			if got != want {
				t.Errorf("ParseSeverity(%q) = %v, want %v", in, got, want)
			}
		}
		if _, err := ParseSeverity("critical"); err == nil {
			t.Error("ParseSeverity accepted an unknown tier")
		}
	})

	t.Run("JSONRoundTrip", func(t *testing.T) {
		data, err := json.Marshal(SeverityShowstopper)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(data) != `"showstopper"` {
			t.Errorf("Marshal = %s", data)
		}
		var s Severity
		if err := json.Unmarshal(data, &s); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if s != SeverityShowstopper {
			t.Errorf("Unmarshal = %v", s)
		}
	})

	t.Run("Ordering", func(t *testing.T) {
		if !(SeverityFlagger < SeverityPseudonymizer && SeverityPseudonymizer < SeverityShowstopper) {
			t.Error("Severity tiers out of order")
		}
	})
}

func TestDefaultPatterns(t *testing.T) {
	showstoppers := 0
	ids := make(map[string]bool)
	for _, def := range DefaultPatterns() {
		if ids[def.ID] {
			t.Errorf("Duplicate pattern id %q", def.ID)
		}
		ids[def.ID] = true
		if def.Severity == "showstopper" {
			showstoppers++
		}
		if _, err := ParseSeverity(def.Severity); err != nil {
			t.Errorf("Pattern %q has invalid severity %q", def.ID, def.Severity)
		}
	}
	if showstoppers == 0 {
		t.Error("Default set carries no showstopper patterns")
	}
}
