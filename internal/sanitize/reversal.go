package sanitize

import (
	"sort"
	"strings"
)

// ReversalResult carries the restored text and observability counters.
type ReversalResult struct {
	OriginalText  string `json:"originalText"`
	ReversalCount int    `json:"reversalCount"`
	// PartialCount is the number of mappings whose placeholder never
	// appeared in the text. Not an error: the model may simply not have
	// echoed a placeholder back.
	PartialCount int `json:"partialCount,omitempty"`
}

// Reverse restores every placeholder and pseudonym in text to its original
// value.
//
// Redaction mappings are restored before pseudonym mappings, and each group
// is processed by descending placeholder length. The length ordering is
// mandatory: replacing [EMAIL_REDACTED] before [EMAIL_REDACTED]_2 would leave
// a mangled _2 suffix pointing at the wrong value.
//
// Only exact matches are substituted. A placeholder the model altered
// (casing, punctuation) is deliberately left as-is: fail open on formatting
// rather than silently substituting the wrong data. Reversing against text
// that contains no placeholders is a no-op.
func Reverse(text string, mappings []Mapping) ReversalResult {
	result := ReversalResult{OriginalText: text}
	if len(mappings) == 0 {
		return result
	}

	var redactions, pseudonyms []Mapping
	for _, m := range mappings {
		if m.Kind == KindPseudonym {
			pseudonyms = append(pseudonyms, m)
		} else {
			redactions = append(redactions, m)
		}
	}

	result.OriginalText = applyGroup(result.OriginalText, redactions, &result)
	result.OriginalText = applyGroup(result.OriginalText, pseudonyms, &result)

	return result
}

// applyGroup substitutes one mapping group, longest placeholder first.
func applyGroup(text string, group []Mapping, result *ReversalResult) string {
	sort.SliceStable(group, func(i, j int) bool {
		if len(group[i].RedactedValue) != len(group[j].RedactedValue) {
			return len(group[i].RedactedValue) > len(group[j].RedactedValue)
		}
		return group[i].RedactedValue < group[j].RedactedValue
	})

	for _, m := range group {
		if m.RedactedValue == "" {
			continue
		}
		n := strings.Count(text, m.RedactedValue)
		if n == 0 {
			result.PartialCount++
			continue
		}
		text = strings.ReplaceAll(text, m.RedactedValue, m.OriginalValue)
		result.ReversalCount += n
	}

	return text
}
