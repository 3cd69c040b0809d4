package names

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xrash/smetrics"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	appLog "zeitachse/internal/log"
)

// suggestionCutoff is the minimum similarity score for a fuzzy suggestion.
const suggestionCutoff = 0.6

// defaultSuggestions caps how many fuzzy candidates a lookup returns.
const defaultSuggestions = 5

// Mapping is one real-name → fake-name pair as stored in the mapping file.
type Mapping struct {
	Real string `json:"real"`
	Fake string `json:"fake"`
}

// Suggestion is one fuzzy candidate with its similarity score.
type Suggestion struct {
	Real  string  `json:"real"`
	Fake  string  `json:"fake"`
	Score float64 `json:"score"`
}

// Match is the result of a lookup: an exact (or best fuzzy) hit plus ranked
// alternatives.
type Match struct {
	Real        string       `json:"real,omitempty"`
	Fake        string       `json:"fake,omitempty"`
	Confidence  float64      `json:"confidence"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Mapper resolves real player names to their in-universe fake names. The
// mapping is a static list; lookups are normalized (casefold, collapsed
// whitespace, diacritics stripped) before matching.
type Mapper struct {
	realToFake map[string]string
	normIndex  map[string]string // normalized real -> original real
	replaceRe  *regexp.Regexp
}

// stripMarks removes combining marks after NFKD decomposition, so "Köhler"
// and "Kohler" normalize identically.
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return out
}

// New builds a Mapper from the given pairs. Rows with an empty side are
// skipped.
func New(mapping []Mapping) *Mapper {
	m := &Mapper{
		realToFake: map[string]string{},
		normIndex:  map[string]string{},
	}

	for _, row := range mapping {
		real := strings.TrimSpace(row.Real)
		fake := strings.TrimSpace(row.Fake)
		if real == "" || fake == "" {
			continue
		}
		m.realToFake[real] = fake
		m.normIndex[normalize(real)] = real
	}

	// Longest names first so multi-word names win over embedded shorter ones.
	sorted := make([]string, 0, len(m.realToFake))
	for real := range m.realToFake {
		sorted = append(sorted, real)
	}
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	if len(sorted) > 0 {
		escaped := make([]string, len(sorted))
		for i, n := range sorted {
			escaped[i] = regexp.QuoteMeta(n)
		}
		// Bare alternation; word boundaries are checked per hit in
		// ReplaceInText so a single separator between two names is not
		// consumed by the first match.
		m.replaceRe = regexp.MustCompile(strings.Join(escaped, "|"))
	}

	appLog.Debug("name mapper built", "entries", len(m.realToFake))
	return m
}

// LoadFile reads a JSON mapping file (a list of {real, fake} objects).
func LoadFile(path string) (*Mapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mapping []Mapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("name mapping %s: %w", path, err)
	}
	return New(mapping), nil
}

// Size returns the number of usable mapping entries.
func (m *Mapper) Size() int {
	return len(m.realToFake)
}

// Lookup resolves a real name. An exact normalized match returns confidence
// 1.0 with no suggestions; otherwise the closest names by Jaro-Winkler
// similarity above the cutoff are returned, best first.
func (m *Mapper) Lookup(realName string) Match {
	q := normalize(realName)
	if q == "" {
		return Match{Suggestions: []Suggestion{}}
	}

	if original, ok := m.normIndex[q]; ok {
		return Match{
			Real:        original,
			Fake:        m.realToFake[original],
			Confidence:  1.0,
			Suggestions: []Suggestion{},
		}
	}

	suggestions := make([]Suggestion, 0, defaultSuggestions)
	for key, original := range m.normIndex {
		score := smetrics.JaroWinkler(q, key, 0.7, 4)
		if score < suggestionCutoff {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Real:  original,
			Fake:  m.realToFake[original],
			Score: score,
		})
	}
	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Real < suggestions[j].Real
	})
	if len(suggestions) > defaultSuggestions {
		suggestions = suggestions[:defaultSuggestions]
	}

	match := Match{Suggestions: suggestions}
	if len(suggestions) > 0 {
		best := suggestions[0]
		match.Real = best.Real
		match.Fake = best.Fake
		match.Confidence = best.Score
	}
	return match
}

// ReplaceInText substitutes every known real name in the text with its fake
// counterpart. Matching is whole-word (a letter on either side disqualifies a
// hit) and case-sensitive (editorial text is expected to carry proper
// spelling). Names separated by a single non-letter ("Meyer/Kohl") are both
// replaced.
func (m *Mapper) ReplaceInText(text string) string {
	if text == "" || m.replaceRe == nil {
		return text
	}

	var b strings.Builder
	last := 0
	for _, loc := range m.replaceRe.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); unicode.IsLetter(prev) {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsLetter(next) {
			continue
		}
		fake, ok := m.realToFake[text[start:end]]
		if !ok {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString(fake)
		last = end
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}
