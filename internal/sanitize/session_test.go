package sanitize

import (
	"strings"
	"testing"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
)

// spanOf builds a pattern match for value located inside text.
func spanOf(t *testing.T, text, value, dataType string) classify.Match {
	t.Helper()
	start := strings.Index(text, value)
	if start < 0 {
		t.Fatalf("value %q not in text %q", value, text)
	}
	return classify.Match{
		Value:      value,
		StartIndex: start,
		EndIndex:   start + len(value),
		DataType:   dataType,
		Severity:   catalog.SeverityPseudonymizer,
		Source:     classify.SourcePattern,
	}
}

func dictSpanOf(t *testing.T, text, value, pseudonym, dataType string) classify.Match {
	t.Helper()
	m := spanOf(t, text, value, dataType)
	m.Source = classify.SourceDictionary
	m.Pseudonym = pseudonym
	return m
}

func TestSanitize(t *testing.T) {
	t.Run("SingleRedaction", func(t *testing.T) {
		text := "mail bob@example.com please"
		s := NewSession()
		got := s.Sanitize(text, []classify.Match{spanOf(t, text, "bob@example.com", "email")})
		want := "mail [EMAIL_REDACTED] please"
		if got != want {
			t.Errorf("Sanitize = %q, want %q", got, want)
		}
	})

	t.Run("DistinctValuesGetSuffixes", func(t *testing.T) {
		text := "a@x.com then b@x.com then c@x.com"
		s := NewSession()
		got := s.Sanitize(text, []classify.Match{
			spanOf(t, text, "a@x.com", "email"),
			spanOf(t, text, "b@x.com", "email"),
			spanOf(t, text, "c@x.com", "email"),
		})
		want := "[EMAIL_REDACTED] then [EMAIL_REDACTED]_2 then [EMAIL_REDACTED]_3"
		if got != want {
			t.Errorf("Sanitize = %q, want %q", got, want)
		}
	})

	t.Run("SameValueReusesPlaceholder", func(t *testing.T) {
		text := "a@x.com and again a@x.com"
		first := spanOf(t, text, "a@x.com", "email")
		second := first
		second.StartIndex = strings.LastIndex(text, "a@x.com")
		second.EndIndex = second.StartIndex + len("a@x.com")

		s := NewSession()
		got := s.Sanitize(text, []classify.Match{first, second})
		want := "[EMAIL_REDACTED] and again [EMAIL_REDACTED]"
		if got != want {
			t.Errorf("Sanitize = %q, want %q", got, want)
		}
		res := s.Result(got)
		if len(res.Mappings) != 1 {
			t.Errorf("Expected 1 mapping for a reused value, got %d", len(res.Mappings))
		}
		if res.RedactionsApplied != 2 {
			t.Errorf("RedactionsApplied = %d, want 2", res.RedactionsApplied)
		}
	})

	t.Run("CountersAreIndependentPerDataType", func(t *testing.T) {
		text := "a@x.com and 10.0.0.1 and b@x.com"
		s := NewSession()
		got := s.Sanitize(text, []classify.Match{
			spanOf(t, text, "a@x.com", "email"),
			spanOf(t, text, "10.0.0.1", "ipv4"),
			spanOf(t, text, "b@x.com", "email"),
		})
		want := "[EMAIL_REDACTED] and [IPV4_REDACTED] and [EMAIL_REDACTED]_2"
		if got != want {
			t.Errorf("Sanitize = %q, want %q", got, want)
		}
	})

	t.Run("TemplateSubstitution", func(t *testing.T) {
		text := "key sk-abc123"
		m := spanOf(t, text, "sk-abc123", "api_key")
		m.Template = "[{DATATYPE}_REDACTED]"
		s := NewSession()
		got := s.Sanitize(text, []classify.Match{m})
		if got != "key [API_KEY_REDACTED]" {
			t.Errorf("Sanitize = %q", got)
		}
	})

	t.Run("ShowstopperNeverRewritten", func(t *testing.T) {
		text := "ssn 123-45-6789 end"
		m := spanOf(t, text, "123-45-6789", "ssn")
		m.Severity = catalog.SeverityShowstopper
		s := NewSession()
		if got := s.Sanitize(text, []classify.Match{m}); got != text {
			t.Errorf("Showstopper match was rewritten: %q", got)
		}
	})

	t.Run("DictionaryPseudonym", func(t *testing.T) {
		text := "Project Aurora kickoff for Project Aurora"
		first := dictSpanOf(t, text, "Project Aurora", "Project Zephyr", "project_name")
		second := first
		second.StartIndex = strings.LastIndex(text, "Project Aurora")
		second.EndIndex = second.StartIndex + len("Project Aurora")

		s := NewSession()
		got := s.Sanitize(text, []classify.Match{first, second})
		want := "Project Zephyr kickoff for Project Zephyr"
		if got != want {
			t.Errorf("Sanitize = %q, want %q", got, want)
		}
		res := s.Result(got)
		if res.PseudonymsUsed != 1 {
			t.Errorf("PseudonymsUsed = %d, want 1", res.PseudonymsUsed)
		}
	})

	t.Run("SessionSharedAcrossTexts", func(t *testing.T) {
		// System prompt and user message of one request share counters,
		// so the second text continues the suffix sequence.
		s := NewSession()
		sys := "admin a@x.com"
		usr := "user b@x.com"
		gotSys := s.Sanitize(sys, []classify.Match{spanOf(t, sys, "a@x.com", "email")})
		gotUsr := s.Sanitize(usr, []classify.Match{spanOf(t, usr, "b@x.com", "email")})
		if gotSys != "admin [EMAIL_REDACTED]" {
			t.Errorf("System text = %q", gotSys)
		}
		if gotUsr != "user [EMAIL_REDACTED]_2" {
			t.Errorf("User text = %q", gotUsr)
		}
	})

	t.Run("PlaceholderCollisionIsResolved", func(t *testing.T) {
		// Two dictionary entries with the same pseudonym must not map two
		// originals onto one replacement.
		text := "Alice met Bob"
		alice := dictSpanOf(t, text, "Alice", "Sam", "person_name")
		bob := dictSpanOf(t, text, "Bob", "Sam", "person_name")
		s := NewSession()
		got := s.Sanitize(text, []classify.Match{alice, bob})
		if got != "Sam met Sam_2" {
			t.Errorf("Sanitize = %q, want %q", got, "Sam met Sam_2")
		}
	})
}

func TestSanitizationLevel(t *testing.T) {
	t.Run("None", func(t *testing.T) {
		s := NewSession()
		if got := s.Result("text").SanitizationLevel; got != LevelNone {
			t.Errorf("Level = %s, want none", got)
		}
	})

	t.Run("BasicRedactionsOnly", func(t *testing.T) {
		text := "a@x.com b@x.com"
		s := NewSession()
		out := s.Sanitize(text, []classify.Match{
			spanOf(t, text, "a@x.com", "email"),
			spanOf(t, text, "b@x.com", "email"),
		})
		if got := s.Result(out).SanitizationLevel; got != LevelBasic {
			t.Errorf("Level = %s, want basic", got)
		}
	})

	t.Run("BasicPseudonymsOnly", func(t *testing.T) {
		text := "Project Aurora"
		s := NewSession()
		out := s.Sanitize(text, []classify.Match{
			dictSpanOf(t, text, "Project Aurora", "Project Zephyr", "project_name"),
		})
		if got := s.Result(out).SanitizationLevel; got != LevelBasic {
			t.Errorf("Level = %s, want basic", got)
		}
	})

	t.Run("StandardBothEngines", func(t *testing.T) {
		text := "a@x.com for Project Aurora"
		s := NewSession()
		out := s.Sanitize(text, []classify.Match{
			spanOf(t, text, "a@x.com", "email"),
			dictSpanOf(t, text, "Project Aurora", "Project Zephyr", "project_name"),
		})
		if got := s.Result(out).SanitizationLevel; got != LevelStandard {
			t.Errorf("Level = %s, want standard", got)
		}
	})

	t.Run("StrictMultipleRedactionTypes", func(t *testing.T) {
		text := "a@x.com at 10.0.0.1 for Project Aurora"
		s := NewSession()
		out := s.Sanitize(text, []classify.Match{
			spanOf(t, text, "a@x.com", "email"),
			spanOf(t, text, "10.0.0.1", "ipv4"),
			dictSpanOf(t, text, "Project Aurora", "Project Zephyr", "project_name"),
		})
		if got := s.Result(out).SanitizationLevel; got != LevelStrict {
			t.Errorf("Level = %s, want strict", got)
		}
	})
}

func TestResultCopiesState(t *testing.T) {
	text := "a@x.com"
	s := NewSession()
	out := s.Sanitize(text, []classify.Match{spanOf(t, text, "a@x.com", "email")})
	res := s.Result(out)

	res.Mappings[0].OriginalValue = "tampered"
	res2 := s.Result(out)
	if res2.Mappings[0].OriginalValue != "a@x.com" {
		t.Error("Result must return a copy of the session mappings")
	}
}
