package catalog

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Severity is the closed set of handling tiers for a pattern. Precedence is
// explicit: a higher value always wins when a policy decision has to pick one.
type Severity int

const (
	// SeverityFlagger matches are recorded for observability and otherwise
	// sanitized like pseudonymizer matches.
	SeverityFlagger Severity = iota + 1
	// SeverityPseudonymizer matches are reversibly sanitized before the call
	// leaves the trust boundary.
	SeverityPseudonymizer
	// SeverityShowstopper matches block the external call outright.
	SeverityShowstopper
)

// String returns the wire representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityShowstopper:
		return "showstopper"
	case SeverityPseudonymizer:
		return "pseudonymizer"
	case SeverityFlagger:
		return "flagger"
	default:
		return "unknown"
	}
}

// ParseSeverity converts a stored severity string into its enum value.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "showstopper":
		return SeverityShowstopper, nil
	case "pseudonymizer":
		return SeverityPseudonymizer, nil
	case "flagger":
		return SeverityFlagger, nil
	default:
		return 0, fmt.Errorf("unknown severity: %q", s)
	}
}

// MarshalJSON serializes the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the string form of a severity.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, err := ParseSeverity(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PatternDefinition is a single sensitive-data pattern as stored in the
// catalog. Immutable once loaded; many patterns may share a DataType.
type PatternDefinition struct {
	ID                  string `db:"id" json:"id"`
	Name                string `db:"name" json:"name"`
	Regex               string `db:"regex" json:"regex"`
	DataType            string `db:"data_type" json:"dataType"`
	Severity            string `db:"severity" json:"severity"`
	ReplacementTemplate string `db:"replacement_template" json:"replacementTemplate,omitempty"`
	Category            string `db:"category" json:"category"`
}

// DictionaryEntry maps a known literal string to its stable pseudonym.
// OriginalValue is unique within the active dictionary; matching is
// case-sensitive and exact.
type DictionaryEntry struct {
	OriginalValue string `db:"original_value" json:"originalValue"`
	Pseudonym     string `db:"pseudonym" json:"pseudonym"`
	DataType      string `db:"data_type" json:"dataType"`
	Category      string `db:"category" json:"category"`
}

// CompiledPattern is a PatternDefinition with its regex compiled and its
// severity parsed. Only compiled patterns participate in classification.
type CompiledPattern struct {
	Definition PatternDefinition
	Pattern    *regexp.Regexp
	Severity   Severity
}

// Snapshot is an immutable view of the catalog. Classifications run against a
// snapshot, never against the catalog itself, so a concurrent refresh can
// never expose a half-updated pattern set.
type Snapshot struct {
	Patterns   []CompiledPattern
	Dictionary []DictionaryEntry
	LoadedAt   time.Time
	Skipped    int // pattern definitions dropped due to malformed regexes
}
