// Package placeholder parses the retrieval placeholders recognized inside
// system-prompt text: [[名字日记本...]], <<名字日记本>>, 《《名字日记本...》》,
// [[VCP元思考...]], and the [[AIMemo=True]] license token, together with
// their modifier grammar, into typed values the query planner dispatches
// on.
package placeholder

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind discriminates the placeholder families.
type Kind int

const (
	// KindRag is [[<name>日记本<mods>]]: k-snippet retrieval.
	KindRag Kind = iota
	// KindFullText is <<<name>日记本>>: gated whole-diary inclusion.
	KindFullText
	// KindHybrid is 《《<name>日记本<mods>》》: gate first, then retrieval.
	KindHybrid
	// KindMetaThink is [[VCP元思考<params>]].
	KindMetaThink
	// KindAIMemoLicense is [[AIMemo=True]], stripped from output; its
	// presence enables the AIMemo modifier in other placeholders.
	KindAIMemoLicense
)

// Modifiers is the parsed form of a placeholder's <mods> suffix.
type Modifiers struct {
	Time   bool
	Group  bool
	Rerank bool
	AIMemo bool
	// TagWeight is the TagMemo<float> weight, nil when absent.
	TagWeight *float64
	// KMultiplier scales the dynamic k; 1 when no bare float is present.
	KMultiplier float64
}

// MetaParams is the parsed form of [[VCP元思考<params>]].
type MetaParams struct {
	Auto          bool
	AutoThreshold float64 // 0 means "use the engine default"
	Chain         string
	KSeq          []int
}

// Placeholder is one recognized occurrence in a system message.
type Placeholder struct {
	Kind Kind
	// Raw is the exact matched text, the unit of substitution.
	Raw string
	// Name is the diary name for the diary kinds, empty otherwise.
	Name string
	Mods Modifiers
	Meta MetaParams
}

var (
	metaPattern     = regexp.MustCompile(`\[\[VCP元思考([^\[\]]*)\]\]`)
	licensePattern  = regexp.MustCompile(`\[\[AIMemo=True\]\]`)
	ragPattern      = regexp.MustCompile(`\[\[([^\[\]:]+?)日记本([^\[\]]*)\]\]`)
	fullTextPattern = regexp.MustCompile(`<<([^<>:]+?)日记本>>`)
	hybridPattern   = regexp.MustCompile(`《《([^《》:]+?)日记本([^《》]*)》》`)
)

// match pairs a located placeholder with its byte offset so FindAll can
// report placeholders in document order across the five patterns.
type match struct {
	start int
	ph    Placeholder
}

// FindAll returns every placeholder in text in order of appearance.
func FindAll(text string) []Placeholder {
	var matches []match

	for _, loc := range metaPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[loc[0]:loc[1]]
		params := text[loc[2]:loc[3]]
		matches = append(matches, match{start: loc[0], ph: Placeholder{
			Kind: KindMetaThink,
			Raw:  raw,
			Meta: ParseMetaParams(params),
		}})
	}
	for _, loc := range licensePattern.FindAllStringIndex(text, -1) {
		matches = append(matches, match{start: loc[0], ph: Placeholder{
			Kind: KindAIMemoLicense,
			Raw:  text[loc[0]:loc[1]],
		}})
	}
	for _, loc := range ragPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[loc[2]:loc[3]]
		if strings.HasPrefix(name, "VCP元思考") || name == "AIMemo=True" {
			continue
		}
		matches = append(matches, match{start: loc[0], ph: Placeholder{
			Kind: KindRag,
			Raw:  text[loc[0]:loc[1]],
			Name: name,
			Mods: ParseModifiers(text[loc[4]:loc[5]]),
		}})
	}
	for _, loc := range fullTextPattern.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, match{start: loc[0], ph: Placeholder{
			Kind: KindFullText,
			Raw:  text[loc[0]:loc[1]],
			Name: text[loc[2]:loc[3]],
			Mods: Modifiers{KMultiplier: 1},
		}})
	}
	for _, loc := range hybridPattern.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, match{start: loc[0], ph: Placeholder{
			Kind: KindHybrid,
			Raw:  text[loc[0]:loc[1]],
			Name: text[loc[2]:loc[3]],
			Mods: ParseModifiers(text[loc[4]:loc[5]]),
		}})
	}

	sortByStart(matches)
	out := make([]Placeholder, len(matches))
	for i, m := range matches {
		out[i] = m.ph
	}
	return out
}

func sortByStart(m []match) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j-1].start > m[j].start; j-- {
			m[j-1], m[j] = m[j], m[j-1]
		}
	}
}

// ParseModifiers parses a space-insensitive token sequence separated by
// "::" or ":". Recognized: Time, Group, Rerank, AIMemo, TagMemo<float>,
// and a bare <float> k multiplier.
func ParseModifiers(mods string) Modifiers {
	out := Modifiers{KMultiplier: 1}
	for _, token := range splitTokens(mods) {
		lower := strings.ToLower(token)
		switch {
		case lower == "time":
			out.Time = true
		case lower == "group":
			out.Group = true
		case lower == "rerank":
			out.Rerank = true
		case lower == "aimemo":
			out.AIMemo = true
		case strings.HasPrefix(lower, "tagmemo"):
			if w, err := strconv.ParseFloat(token[len("TagMemo"):], 64); err == nil && w > 0 && w <= 1 {
				out.TagWeight = &w
			}
		default:
			if f, err := strconv.ParseFloat(token, 64); err == nil && f > 0 {
				out.KMultiplier = f
			}
		}
	}
	return out
}

// ParseMetaParams parses the [[VCP元思考...]] parameter string: an optional
// Auto[:threshold], a chain name, and a "-"-separated k-sequence, in any
// order.
func ParseMetaParams(params string) MetaParams {
	out := MetaParams{}
	tokens := splitTokens(params)
	for i := 0; i < len(tokens); i++ {
		token := tokens[i]
		lower := strings.ToLower(token)
		switch {
		case lower == "auto":
			out.Auto = true
			if i+1 < len(tokens) {
				if t, err := strconv.ParseFloat(tokens[i+1], 64); err == nil && t > 0 && t <= 1 {
					out.AutoThreshold = t
					i++
				}
			}
		case isKSequence(token):
			out.KSeq = parseKSequence(token)
		default:
			if out.Chain == "" {
				out.Chain = token
			}
		}
	}
	return out
}

// splitTokens splits on "::" then ":", trimming whitespace and dropping
// empties, so ": Time :: Group" and ":Time:Group" parse identically.
func splitTokens(s string) []string {
	s = strings.ReplaceAll(s, "::", ":")
	parts := strings.Split(s, ":")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isKSequence(token string) bool {
	if token == "" {
		return false
	}
	for _, part := range strings.Split(token, "-") {
		if part == "" {
			return false
		}
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return true
}

func parseKSequence(token string) []int {
	parts := strings.Split(token, "-")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, _ := strconv.Atoi(p)
		out = append(out, n)
	}
	return out
}
