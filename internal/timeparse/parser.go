package timeparse

import (
	"sort"
	"time"
)

// maxInputLength bounds text length before any regex runs, guarding
// against ReDoS on adversarially long input.
const maxInputLength = 10000

// Parse extracts zero or more absolute half-open day ranges from text,
// interpreting relative references against now in the configured time
// zone. Falls back to UTC if the configured zone fails to load. Results
// are deduplicated by (start,end) unix-second pair; Parse never mutates
// its inputs and is safe to call repeatedly (idempotent up to the subset
// relation documented on Range.Render).
func Parse(text string, now time.Time, cfg Config) []Range {
	cfg.ApplyDefaults()
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	now = now.In(loc)

	if len(text) > maxInputLength {
		text = text[:maxInputLength]
	}
	if text == "" {
		return nil
	}

	var ranges []Range
	seen := make(map[[2]int64]bool)
	add := func(r Range) {
		key := [2]int64{r.Start.Unix(), r.End.Unix()}
		if seen[key] {
			return
		}
		seen[key] = true
		ranges = append(ranges, r)
	}

	for phrase, offset := range literalPhrases {
		if containsPhrase(text, phrase) {
			add(dayRange(now.AddDate(0, 0, offset)))
		}
	}

	// Earlier table entries claim their matched spans so a broader later
	// pattern (上个月 after 上个月上旬, 上周 after 上周三) cannot re-match
	// inside them.
	var consumed [][2]int
	overlaps := func(start, end int) bool {
		for _, c := range consumed {
			if start < c[1] && end > c[0] {
				return true
			}
		}
		return false
	}

	for _, entry := range patternTable {
		for _, loc2 := range entry.pattern.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(loc2[0], loc2[1]) {
				continue
			}
			m := submatchStrings(text, loc2)
			if r, ok := entry.resolve(m, now, loc); ok {
				consumed = append(consumed, [2]int{loc2[0], loc2[1]})
				add(r)
			}
		}
	}

	// Literal phrases come out of a map, so order the result by interval
	// to keep Parse deterministic for texts matching several expressions.
	sort.Slice(ranges, func(i, j int) bool {
		if !ranges[i].Start.Equal(ranges[j].Start) {
			return ranges[i].Start.Before(ranges[j].Start)
		}
		return ranges[i].End.Before(ranges[j].End)
	})
	return ranges
}

// submatchStrings materializes a FindAllStringSubmatchIndex entry into the
// []string shape the resolvers consume.
func submatchStrings(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := 0; i < len(loc); i += 2 {
		if loc[i] < 0 {
			continue
		}
		out[i/2] = text[loc[i]:loc[i+1]]
	}
	return out
}

func containsPhrase(text, phrase string) bool {
	if len(phrase) == 0 || len(text) < len(phrase) {
		return false
	}
	for i := 0; i+len(phrase) <= len(text); i++ {
		if text[i:i+len(phrase)] == phrase {
			return true
		}
	}
	return false
}
