package sanitize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/classify"
)

// Session accumulates the reversible transform state for a single request.
// Both the system prompt and the user message of one request run through the
// same session, so placeholder uniqueness holds across every text the request
// sends out. Sessions are never shared between requests.
type Session struct {
	typeCounts  map[string]int      // per-dataType occurrence counter for redaction suffixes
	byValue     map[string]*Mapping // dataType+"\x00"+original -> existing redaction mapping
	pseudonyms  map[string]*Mapping // originalValue -> existing pseudonym mapping
	taken       map[string]string   // redactedValue -> originalValue, uniqueness guard
	mappings    []Mapping
	redactions  int
	redTypes    []string
	redTypeSet  map[string]bool
	pseudoTypes []string
	pseudoSet   map[string]bool
}

// NewSession creates an empty per-request sanitization session.
func NewSession() *Session {
	return &Session{
		typeCounts: make(map[string]int),
		byValue:    make(map[string]*Mapping),
		pseudonyms: make(map[string]*Mapping),
		taken:      make(map[string]string),
		redTypeSet: make(map[string]bool),
		pseudoSet:  make(map[string]bool),
	}
}

// Sanitize rewrites text, substituting every non-showstopper match with a
// reversible placeholder or pseudonym. Matches must be sorted by StartIndex
// with offsets computed against text, which is exactly what the classifier
// returns. The rewrite is a single offset-aware pass over the original text;
// sequential string replacement would invalidate later offsets.
func (s *Session) Sanitize(text string, matches []classify.Match) string {
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0

	for _, m := range matches {
		if m.StartIndex < last {
			// Overlap resolution upstream guarantees this cannot happen;
			// skip rather than corrupt the output if it ever does.
			continue
		}

		var replacement string
		switch m.Source {
		case classify.SourceDictionary:
			replacement = s.pseudonymize(m)
		default:
			if m.Severity == catalog.SeverityShowstopper {
				// Showstoppers block upstream; never rewritten here.
				continue
			}
			replacement = s.redact(m)
		}

		b.WriteString(text[last:m.StartIndex])
		b.WriteString(replacement)
		last = m.EndIndex
	}

	b.WriteString(text[last:])
	return b.String()
}

// redact returns the placeholder for a pattern match, creating a new mapping
// for a value not seen before in this session. The same original value reuses
// its placeholder; a new value for an already-seen dataType gets the next
// occurrence suffix (_2, _3, ...).
func (s *Session) redact(m classify.Match) string {
	key := m.DataType + "\x00" + m.Value
	if existing, ok := s.byValue[key]; ok {
		s.redactions++
		return existing.RedactedValue
	}

	s.typeCounts[m.DataType]++
	count := s.typeCounts[m.DataType]

	base := m.Template
	if base == "" {
		base = "[" + strings.ToUpper(m.DataType) + "_REDACTED]"
	} else {
		base = strings.ReplaceAll(base, "{DATATYPE}", strings.ToUpper(m.DataType))
	}

	placeholder := base
	if count > 1 {
		placeholder = base + "_" + strconv.Itoa(count)
	}
	placeholder = s.claim(placeholder, m.Value)

	mapping := Mapping{
		OriginalValue: m.Value,
		RedactedValue: placeholder,
		DataType:      m.DataType,
		StartIndex:    m.StartIndex,
		EndIndex:      m.EndIndex,
		PatternName:   m.PatternName,
		Kind:          KindRedaction,
	}
	s.mappings = append(s.mappings, mapping)
	s.byValue[key] = &s.mappings[len(s.mappings)-1]

	s.redactions++
	if !s.redTypeSet[m.DataType] {
		s.redTypeSet[m.DataType] = true
		s.redTypes = append(s.redTypes, m.DataType)
	}

	return placeholder
}

// pseudonymize returns the stable pseudonym for a dictionary match. Every
// occurrence of the same original value reuses one mapping entry.
func (s *Session) pseudonymize(m classify.Match) string {
	if existing, ok := s.pseudonyms[m.Value]; ok {
		return existing.RedactedValue
	}

	pseudonym := s.claim(m.Pseudonym, m.Value)

	mapping := Mapping{
		OriginalValue: m.Value,
		RedactedValue: pseudonym,
		DataType:      m.DataType,
		StartIndex:    m.StartIndex,
		EndIndex:      m.EndIndex,
		PatternName:   m.PatternName,
		Kind:          KindPseudonym,
	}
	s.mappings = append(s.mappings, mapping)
	s.pseudonyms[m.Value] = &s.mappings[len(s.mappings)-1]

	if !s.pseudoSet[m.DataType] {
		s.pseudoSet[m.DataType] = true
		s.pseudoTypes = append(s.pseudoTypes, m.DataType)
	}

	return pseudonym
}

// claim reserves a placeholder string for an original value. If the string is
// already held by a different original (a template or dictionary collision),
// a numeric suffix is appended until the placeholder is unique within the
// session.
func (s *Session) claim(placeholder, original string) string {
	candidate := placeholder
	for n := 2; ; n++ {
		holder, ok := s.taken[candidate]
		if !ok {
			s.taken[candidate] = original
			return candidate
		}
		if holder == original {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", placeholder, n)
	}
}

// Result assembles the sanitization result for the given sanitized text.
func (s *Session) Result(sanitizedText string) Result {
	res := Result{
		SanitizedText:     sanitizedText,
		Mappings:          append([]Mapping(nil), s.mappings...),
		PseudonymsUsed:    len(s.pseudonyms),
		PseudonymTypes:    append([]string(nil), s.pseudoTypes...),
		RedactionsApplied: s.redactions,
		RedactionTypes:    append([]string(nil), s.redTypes...),
	}
	res.SanitizationLevel = deriveLevel(res)
	return res
}

// deriveLevel grades the result: none without any transform, strict when both
// engines fired and redaction spanned at least two distinct data types,
// standard when both engines fired, basic when only one did.
func deriveLevel(res Result) Level {
	switch {
	case res.PseudonymsUsed == 0 && res.RedactionsApplied == 0:
		return LevelNone
	case res.PseudonymsUsed > 0 && res.RedactionsApplied > 0 && len(res.RedactionTypes) >= 2:
		return LevelStrict
	case res.PseudonymsUsed > 0 && res.RedactionsApplied > 0:
		return LevelStandard
	default:
		return LevelBasic
	}
}
