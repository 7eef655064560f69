package sanitize

// MappingKind distinguishes the two reversible transforms. Reversal order
// depends on it: redaction mappings are restored before pseudonym mappings.
type MappingKind string

const (
	// KindRedaction marks a pattern-based placeholder substitution.
	KindRedaction MappingKind = "redaction"
	// KindPseudonym marks a dictionary-based stable pseudonym substitution.
	KindPseudonym MappingKind = "pseudonym"
)

// Mapping is the authoritative record of one substitution. Its lifecycle is
// request-scoped: created during sanitization, consumed during reversal,
// discarded after the response is returned. It must never be cached or
// shared across requests.
type Mapping struct {
	OriginalValue string      `json:"originalValue"`
	RedactedValue string      `json:"redactedValue"`
	DataType      string      `json:"dataType"`
	StartIndex    int         `json:"startIndex"`
	EndIndex      int         `json:"endIndex"`
	PatternName   string      `json:"patternName"`
	Kind          MappingKind `json:"kind"`
}

// Level grades how much sanitization a request received.
type Level string

const (
	LevelNone     Level = "none"
	LevelBasic    Level = "basic"
	LevelStandard Level = "standard"
	LevelStrict   Level = "strict"
)

// Result is the outcome of sanitizing one request's worth of text.
type Result struct {
	SanitizedText     string    `json:"sanitizedText"`
	Mappings          []Mapping `json:"mappings"`
	PseudonymsUsed    int       `json:"pseudonymsUsed"`
	PseudonymTypes    []string  `json:"pseudonymTypes"`
	RedactionsApplied int       `json:"redactionsApplied"`
	RedactionTypes    []string  `json:"redactionTypes"`
	SanitizationLevel Level     `json:"sanitizationLevel"`
}
