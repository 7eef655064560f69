package classify

import (
	"sort"
	"strings"

	"github.com/openveil/pii-gateway/internal/catalog"
	"github.com/openveil/pii-gateway/internal/logger"
	"go.uber.org/zap"
)

// MatchSource identifies which scan produced a match.
type MatchSource string

const (
	// SourcePattern marks matches produced by a catalog regex pattern.
	SourcePattern MatchSource = "pattern"
	// SourceDictionary marks matches produced by a literal dictionary scan.
	SourceDictionary MatchSource = "dictionary"
)

// Match is a single classified span of sensitive text. Matches are produced
// fresh per classification call and never persisted beyond the request.
type Match struct {
	Value             string           `json:"value"`
	StartIndex        int              `json:"startIndex"`
	EndIndex          int              `json:"endIndex"`
	DataType          string           `json:"dataType"`
	Severity          catalog.Severity `json:"severity"`
	PatternID         string           `json:"patternId,omitempty"`
	DictionaryEntryID string           `json:"dictionaryEntryId,omitempty"`
	Source            MatchSource      `json:"source"`

	// Carried for the sanitization engines; not part of the wire shape.
	PatternName string `json:"-"`
	Template    string `json:"-"`
	Pseudonym   string `json:"-"`
}

// Classifier scans text against a catalog snapshot.
type Classifier struct {
	logger *logger.Logger
}

// New creates a new classifier instance
func New(log *logger.Logger) *Classifier {
	return &Classifier{logger: log}
}

// Classify runs every compiled pattern and a literal dictionary scan against
// the text and returns the surviving matches ordered by start index.
//
// Overlap policy: when two matches overlap, the longer one wins and the
// shorter is discarded, so no span is ever transformed twice. Ties prefer
// dictionary matches over pattern matches. The result is deterministic for a
// given snapshot and text.
func (c *Classifier) Classify(snap *catalog.Snapshot, text string) []Match {
	if text == "" {
		return nil
	}

	candidates := make([]Match, 0, 8)

	for _, cp := range snap.Patterns {
		locs := cp.Pattern.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			candidates = append(candidates, Match{
				Value:       text[loc[0]:loc[1]],
				StartIndex:  loc[0],
				EndIndex:    loc[1],
				DataType:    cp.Definition.DataType,
				Severity:    cp.Severity,
				PatternID:   cp.Definition.ID,
				Source:      SourcePattern,
				PatternName: cp.Definition.Name,
				Template:    cp.Definition.ReplacementTemplate,
			})
		}

		if len(locs) > 0 {
			c.logger.Debug("Pattern matched",
				zap.String("pattern_id", cp.Definition.ID),
				zap.String("data_type", cp.Definition.DataType),
				zap.Int("count", len(locs)),
			)
		}
	}

	for _, entry := range snap.Dictionary {
		if entry.OriginalValue == "" {
			continue
		}
		// Literal substring scan: case-sensitive, no regex interpretation.
		offset := 0
		for {
			idx := strings.Index(text[offset:], entry.OriginalValue)
			if idx < 0 {
				break
			}
			start := offset + idx
			end := start + len(entry.OriginalValue)
			candidates = append(candidates, Match{
				Value:             entry.OriginalValue,
				StartIndex:        start,
				EndIndex:          end,
				DataType:          entry.DataType,
				Severity:          catalog.SeverityPseudonymizer,
				DictionaryEntryID: entry.OriginalValue,
				Source:            SourceDictionary,
				PatternName:       entry.Category,
				Pseudonym:         entry.Pseudonym,
			})
			offset = end
		}
	}

	return resolveOverlaps(candidates)
}

// resolveOverlaps keeps the longest match for every overlapping group and
// returns the survivors sorted by start index.
func resolveOverlaps(candidates []Match) []Match {
	if len(candidates) == 0 {
		return nil
	}

	// Longest first; dictionary beats pattern on equal length, then start
	// index and pattern ID keep the order deterministic.
	sort.SliceStable(candidates, func(i, j int) bool {
		li := candidates[i].EndIndex - candidates[i].StartIndex
		lj := candidates[j].EndIndex - candidates[j].StartIndex
		if li != lj {
			return li > lj
		}
		if candidates[i].Source != candidates[j].Source {
			return candidates[i].Source == SourceDictionary
		}
		if candidates[i].StartIndex != candidates[j].StartIndex {
			return candidates[i].StartIndex < candidates[j].StartIndex
		}
		return candidates[i].PatternID < candidates[j].PatternID
	})

	kept := make([]Match, 0, len(candidates))
	for _, cand := range candidates {
		overlaps := false
		for _, k := range kept {
			if cand.StartIndex < k.EndIndex && k.StartIndex < cand.EndIndex {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].StartIndex < kept[j].StartIndex
	})

	return kept
}

// DataTypes returns the deduplicated data types present in the matches,
// preserving first-seen order.
func DataTypes(matches []Match) []string {
	seen := make(map[string]bool, len(matches))
	types := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m.DataType] {
			seen[m.DataType] = true
			types = append(types, m.DataType)
		}
	}
	return types
}
