package classify

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/logger"
)

func testSnapshot() *catalog.Snapshot {
	patterns := []catalog.CompiledPattern{
		{
			Definition: catalog.PatternDefinition{
				ID:       "email-basic",
				Name:     "Email Address",
				DataType: "email",
				Severity: "pseudonymizer",
			},
			Pattern:  regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			Severity: catalog.SeverityPseudonymizer,
		},
		{
			Definition: catalog.PatternDefinition{
				ID:       "ssn-dashed",
				Name:     "Social Security Number",
				DataType: "ssn",
				Severity: "showstopper",
			},
			Pattern:  regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Severity: catalog.SeverityShowstopper,
		},
		{
			Definition: catalog.PatternDefinition{
				ID:       "digits-short",
				Name:     "Short Digit Run",
				DataType: "number",
				Severity: "flagger",
			},
			Pattern:  regexp.MustCompile(`\d{3}-\d{2}`),
			Severity: catalog.SeverityFlagger,
		},
	}

	dictionary := []catalog.DictionaryEntry{
		{OriginalValue: "Project Aurora", Pseudonym: "Project Zephyr", DataType: "project_name", Category: "internal"},
		{OriginalValue: "alice@corp.example", Pseudonym: "user1@example.com", DataType: "email", Category: "internal"},
	}

	return &catalog.Snapshot{Patterns: patterns, Dictionary: dictionary}
}

func TestClassify(t *testing.T) {
	c := New(logger.Nop())
	snap := testSnapshot()

	t.Run("PatternMatchWithOffsets", func(t *testing.T) {
		text := "contact bob@example.com today"
		matches := c.Classify(snap, text)
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(matches))
		}
		m := matches[0]
		if m.Value != "bob@example.com" {
			t.Errorf("Unexpected value: %q", m.Value)
		}
		if text[m.StartIndex:m.EndIndex] != m.Value {
			t.Errorf("Offsets do not point at the value: [%d:%d]", m.StartIndex, m.EndIndex)
		}
		if m.DataType != "email" || m.Source != SourcePattern {
			t.Errorf("Unexpected classification: %+v", m)
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		if matches := c.Classify(snap, ""); matches != nil {
			t.Errorf("Expected nil for empty text, got %v", matches)
		}
	})

	t.Run("NoMatches", func(t *testing.T) {
		matches := c.Classify(snap, "nothing sensitive here")
		if len(matches) != 0 {
			t.Errorf("Expected no matches, got %v", matches)
		}
	})

	t.Run("LongerMatchWins", func(t *testing.T) {
		// "123-45-6789" contains both the full SSN and the shorter
		// digit-run pattern; only the longer span survives.
		matches := c.Classify(snap, "ssn is 123-45-6789 ok")
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match after overlap resolution, got %d", len(matches))
		}
		if matches[0].DataType != "ssn" {
			t.Errorf("Expected the longer ssn match to win, got %s", matches[0].DataType)
		}
	})

	t.Run("DictionaryBeatsPatternOnEqualLength", func(t *testing.T) {
		matches := c.Classify(snap, "mail alice@corp.example now")
		if len(matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(matches))
		}
		if matches[0].Source != SourceDictionary {
			t.Errorf("Expected dictionary match to win the tie, got %s", matches[0].Source)
		}
		if matches[0].Pseudonym != "user1@example.com" {
			t.Errorf("Pseudonym not carried: %+v", matches[0])
		}
	})

	t.Run("DictionaryLiteralScan", func(t *testing.T) {
		matches := c.Classify(snap, "Project Aurora ships before Project Aurora v2")
		if len(matches) != 2 {
			t.Fatalf("Expected 2 occurrences, got %d", len(matches))
		}
		for _, m := range matches {
			if m.Value != "Project Aurora" || m.Source != SourceDictionary {
				t.Errorf("Unexpected match: %+v", m)
			}
		}
		// Case-sensitive: lowercased text must not match.
		if got := c.Classify(snap, "project aurora is fine"); len(got) != 0 {
			t.Errorf("Dictionary scan must be case-sensitive, got %v", got)
		}
	})

	t.Run("ResultsSortedByStart", func(t *testing.T) {
		matches := c.Classify(snap, "a@b.co and Project Aurora and c@d.co")
		for i := 1; i < len(matches); i++ {
			if matches[i].StartIndex < matches[i-1].StartIndex {
				t.Fatalf("Matches out of order: %v", matches)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		text := "a@b.co 123-45-6789 Project Aurora alice@corp.example"
		first := c.Classify(snap, text)
		for i := 0; i < 10; i++ {
			if got := c.Classify(snap, text); !reflect.DeepEqual(got, first) {
				t.Fatalf("Classification not deterministic:\n%v\n%v", first, got)
			}
		}
	})
}

func TestDataTypes(t *testing.T) {
	matches := []Match{
		{DataType: "email"},
		{DataType: "ssn"},
		{DataType: "email"},
		{DataType: "phone"},
	}
	got := DataTypes(matches)
	want := []string{"email", "ssn", "phone"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DataTypes = %v, want %v", got, want)
	}
}
