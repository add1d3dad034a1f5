// Package role normalizes free-form role labels — a bare string, a
// comma/semicolon-separated list, or an array of strings — into a
// canonical, deduplicated, order-preserving list (spec §4.2).
package role

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table maps a lowercased synonym to its canonical role label.
type Table map[string]string

// DefaultTable is the compiled-in synonym table used when no YAML override
// is configured. Entries are intentionally permissive — anything not
// listed passes through unchanged after case-folding and trimming.
var DefaultTable = Table{
	"guitars":    "guitar",
	"axe":        "guitar",
	"lead guitar": "guitar",
	"rhythm guitar": "guitar",
	"keys":       "keyboards",
	"keyboard":   "keyboards",
	"synth":      "keyboards",
	"synths":     "keyboards",
	"piano":      "keyboards",
	"prod":       "producer",
	"producing":  "producer",
	"co-producer": "producer",
	"lyricist":   "lyrics",
	"lyricists":  "lyrics",
	"words":      "lyrics",
	"composer":   "composer",
	"composers":  "composer",
	"music":      "composer",
	"writer":     "songwriter",
	"writers":    "songwriter",
	"songwriting": "songwriter",
	"vox":        "vocals",
	"vocal":      "vocals",
	"voice":      "vocals",
	"lead vocals": "vocals",
	"singer":     "vocals",
	"bg vocals":  "backing vocals",
	"backing vox": "backing vocals",
	"harmony vocals": "backing vocals",
	"bass guitar": "bass",
	"bassist":    "bass",
	"drumming":   "drums",
	"percussion": "percussion",
	"perc":       "percussion",
	"drummer":    "drums",
	"engineer":   "engineering",
	"sound engineer": "engineering",
	"mixing":     "mixer",
	"mixed by":   "mixer",
	"mastering":  "mastering engineer",
	"mastered by": "mastering engineer",
	"arranger":   "arrangement",
	"arranged by": "arrangement",
	"conductor":  "conducting",
	"strings":    "string arrangement",
	"horns":      "horn arrangement",
	"sax":        "saxophone",
	"trumpeter":  "trumpet",
	"violinist":  "violin",
	"cellist":    "cello",
	"dj":         "turntables",
	"programming": "programmer",
	"programmed by": "programmer",
}

// LoadTable reads a YAML-encoded synonym table from path, falling back to
// DefaultTable when path is empty, the file does not exist, or the YAML
// holds no entries; any other read error or a YAML parse error is
// returned — extensible
// configuration per spec §6 without losing the compiled-in baseline.
func LoadTable(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTable, nil
		}
		return nil, err
	}
	var t Table
	if err := yaml.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if len(t) == 0 {
		return DefaultTable, nil
	}
	return t, nil
}

// Normalize accepts a bare string, a comma/semicolon-separated string, or a
// []any/[]string of role labels, and returns the canonical, deduplicated,
// first-seen-order list. Synonyms not present in table pass through
// unchanged after case-folding and trimming. A nil/empty input yields an
// empty (non-nil) slice.
func Normalize(input any, table Table) []string {
	raw := splitInput(input)
	if table == nil {
		table = DefaultTable
	}

	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		label := strings.ToLower(strings.TrimSpace(r))
		if label == "" {
			continue
		}
		if canon, ok := table[label]; ok {
			label = canon
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, label)
	}
	return out
}

func splitInput(input any) []string {
	switch v := input.(type) {
	case nil:
		return nil
	case string:
		return splitString(v)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func splitString(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';'
	})
}
