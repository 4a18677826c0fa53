package tagindex

import (
	"regexp"
	"strings"
	"time"
)

// tagLinePattern matches a trailing "Tag: a, b, c" line, case-insensitive.
var tagLinePattern = regexp.MustCompile(`(?i)^Tag:\s*(.+)$`)

// tagSplitter splits a tag line on any of the three configured delimiters:
// ASCII comma, full-width comma, and the Chinese enumeration comma.
var tagSplitter = regexp.MustCompile(`[,，、]`)

// dateHeaderBracket matches a leading "[YYYY-MM-DD]" date stamp.
var dateHeaderBracket = regexp.MustCompile(`^\[(\d{4})-(\d{2})-(\d{2})\]`)

// dateHeaderDotted matches a leading "YYYY.MM.DD" date stamp.
var dateHeaderDotted = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})`)

// letterRune detects at least one letter; a tag consisting purely of
// digits, whitespace, and punctuation is invalid.
var letterRune = regexp.MustCompile(`\p{L}`)

// ExtractTags extracts, cleans, validates, and deduplicates the tags from a
// diary file's content: the last non-empty line must be a Tag: line, and
// each tag goes through applySuperBlacklist and isValidTag.
// Files without a trailing Tag: line return an empty, non-nil slice.
func ExtractTags(content string, cfg *Config) []string {
	line := lastNonEmptyLine(content)
	if line == "" {
		return []string{}
	}

	m := tagLinePattern.FindStringSubmatch(line)
	if m == nil {
		return []string{}
	}

	raw := tagSplitter.Split(m[1], -1)

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		tag = applySuperBlacklist(tag, cfg.TagBlacklistSuper)
		tag = strings.TrimSpace(tag)
		if !isValidTag(tag, cfg) {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// applySuperBlacklist removes every occurrence of every configured keyword
// from tag, by substring, before the length/blacklist validation runs.
func applySuperBlacklist(tag string, keywords []string) string {
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		tag = strings.ReplaceAll(tag, kw, "")
	}
	return tag
}

// isValidTag applies the length, exact-blacklist, and
// not-purely-digits-whitespace-punctuation rules.
func isValidTag(tag string, cfg *Config) bool {
	if tag == "" {
		return false
	}
	n := len([]rune(tag))
	if n < cfg.TagMinLength || n > cfg.TagMaxLength {
		return false
	}
	for _, b := range cfg.TagBlacklist {
		if tag == b {
			return false
		}
	}
	if !letterRune.MatchString(tag) {
		return false
	}
	return true
}

// lastNonEmptyLine returns the last line of content with non-whitespace
// content, or "" if every line is blank.
func lastNonEmptyLine(content string) string {
	lines := strings.Split(content, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// firstNonEmptyLine returns the first line of content with non-whitespace
// content, or "" if every line is blank.
func firstNonEmptyLine(content string) string {
	lines := strings.Split(content, "\n")
	for _, l := range lines {
		trimmed := strings.TrimSpace(l)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ParseDateHeader extracts the optional date stamp from a diary file's
// first non-empty line, recognizing both "[YYYY-MM-DD]" and "YYYY.MM.DD".
// Returns ok=false if neither form is present.
func ParseDateHeader(content string, loc *time.Location) (t time.Time, ok bool) {
	line := firstNonEmptyLine(content)
	if line == "" {
		return time.Time{}, false
	}
	if m := dateHeaderBracket.FindStringSubmatch(line); m != nil {
		return parseDateParts(m[1], m[2], m[3], loc)
	}
	if m := dateHeaderDotted.FindStringSubmatch(line); m != nil {
		return parseDateParts(m[1], m[2], m[3], loc)
	}
	return time.Time{}, false
}

func parseDateParts(y, mo, d string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02", y+"-"+mo+"-"+d, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ShouldIgnoreFolder reports whether a diary subdirectory name should be
// skipped entirely by the scanner/watcher.
func ShouldIgnoreFolder(name string, cfg *Config) bool {
	for _, ig := range cfg.IgnoreFolders {
		if name == ig {
			return true
		}
	}
	for _, p := range cfg.IgnorePrefix {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, s := range cfg.IgnoreSuffix {
		if s != "" && strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
