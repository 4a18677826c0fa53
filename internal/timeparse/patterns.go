package timeparse

import (
	"regexp"
	"time"
)

// literalPhrases maps a literal day-reference phrase to an offset in days
// from "today". Checked before the regex table since they're exact
// substring matches with no capture groups to resolve.
var literalPhrases = map[string]int{
	"大前天": -3,
	"前天":  -2,
	"昨天":  -1,
	"今天":  0,
	"明天":  1,
	"后天":  2,
	"大后天": 3,
}

// quantity is the shared capture group for a numeral written as ASCII
// digits or as a Chinese numeral in [0,99].
const quantity = `([0-9]+|[零一二两三四五六七八九十]+)`

var (
	absoluteDatePattern   = regexp.MustCompile(`\[?(\d{4})[-.](\d{1,2})[-.](\d{1,2})\]?`)
	daysAgoPattern        = regexp.MustCompile(quantity + `\s*(?:天|日)前`)
	weeksAgoPattern       = regexp.MustCompile(quantity + `\s*(?:周|星期)前`)
	monthsAgoPattern      = regexp.MustCompile(quantity + `\s*个?月前`)
	lastMonthTenDayPattern = regexp.MustCompile(`上个?月(上旬|中旬|下旬)`)
	lastWeekdayPattern    = regexp.MustCompile(`上(?:个)?周([一二三四五六日天])`)
	thisWeekPattern       = regexp.MustCompile(`(?:这|本)(?:个)?周`)
	lastWeekPattern       = regexp.MustCompile(`上(?:个)?(?:周|星期)`)
	thisMonthPattern      = regexp.MustCompile(`(?:这|本)个?月`)
	lastMonthPattern      = regexp.MustCompile(`上个?月`)
)

// weekdayIndex maps the trailing character of 周X/星期X to a
// time.Weekday, treating both 日 and 天 as Sunday.
var weekdayIndex = map[rune]time.Weekday{
	'一': time.Monday, '二': time.Tuesday, '三': time.Wednesday,
	'四': time.Thursday, '五': time.Friday, '六': time.Saturday,
	'日': time.Sunday, '天': time.Sunday,
}

// patternEntry pairs a tagged regex with its resolver. Order matters:
// entries that match a superstring of another pattern (上个月上旬 vs.
// 上个月) must come first so the more specific one wins.
type patternEntry struct {
	tag     string
	pattern *regexp.Regexp
	resolve func(match []string, now time.Time, loc *time.Location) (Range, bool)
}

var patternTable = []patternEntry{
	{tag: "lastMonthTenDay", pattern: lastMonthTenDayPattern, resolve: resolveLastMonthTenDay},
	{tag: "lastWeekday", pattern: lastWeekdayPattern, resolve: resolveLastWeekday},
	{tag: "thisWeek", pattern: thisWeekPattern, resolve: resolveThisWeek},
	{tag: "lastWeek", pattern: lastWeekPattern, resolve: resolveLastWeek},
	{tag: "thisMonth", pattern: thisMonthPattern, resolve: resolveThisMonth},
	{tag: "lastMonth", pattern: lastMonthPattern, resolve: resolveLastMonth},
	{tag: "daysAgo", pattern: daysAgoPattern, resolve: resolveDaysAgo},
	{tag: "weeksAgo", pattern: weeksAgoPattern, resolve: resolveWeeksAgo},
	{tag: "monthsAgo", pattern: monthsAgoPattern, resolve: resolveMonthsAgo},
	{tag: "absoluteDate", pattern: absoluteDatePattern, resolve: resolveAbsoluteDate},
}

func resolveDaysAgo(match []string, now time.Time, loc *time.Location) (Range, bool) {
	n, ok := parseQuantity(match[1])
	if !ok || n <= 0 {
		return Range{}, false
	}
	return dayRange(now.AddDate(0, 0, -n)), true
}

func resolveWeeksAgo(match []string, now time.Time, loc *time.Location) (Range, bool) {
	n, ok := parseQuantity(match[1])
	if !ok || n <= 0 {
		return Range{}, false
	}
	return dayRange(now.AddDate(0, 0, -n*7)), true
}

func resolveMonthsAgo(match []string, now time.Time, loc *time.Location) (Range, bool) {
	n, ok := parseQuantity(match[1])
	if !ok || n <= 0 {
		return Range{}, false
	}
	return dayRange(now.AddDate(0, -n, 0)), true
}

// resolveLastWeekday finds the most recent past occurrence (strictly
// before now) of the named weekday and returns that single day as a
// range.
func resolveLastWeekday(match []string, now time.Time, loc *time.Location) (Range, bool) {
	runes := []rune(match[1])
	if len(runes) == 0 {
		return Range{}, false
	}
	target, ok := weekdayIndex[runes[0]]
	if !ok {
		return Range{}, false
	}
	daysBack := int(now.Weekday()) - int(target)
	if daysBack <= 0 {
		daysBack += 7
	}
	return dayRange(now.AddDate(0, 0, -daysBack)), true
}

func mondayOf(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return d.AddDate(0, 0, -offset)
}

func resolveThisWeek(match []string, now time.Time, loc *time.Location) (Range, bool) {
	start := mondayOf(now)
	return Range{Start: start, End: start.AddDate(0, 0, 7)}, true
}

func resolveLastWeek(match []string, now time.Time, loc *time.Location) (Range, bool) {
	start := mondayOf(now).AddDate(0, 0, -7)
	return Range{Start: start, End: start.AddDate(0, 0, 7)}, true
}

func resolveThisMonth(match []string, now time.Time, loc *time.Location) (Range, bool) {
	return monthRange(now.Year(), now.Month(), loc), true
}

func resolveLastMonth(match []string, now time.Time, loc *time.Location) (Range, bool) {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
	return monthRange(prev.Year(), prev.Month(), loc), true
}

// resolveLastMonthTenDay resolves one of the three ten-day subdivisions
// (上旬 1-10, 中旬 11-20, 下旬 21-end) of the previous calendar month.
func resolveLastMonthTenDay(match []string, now time.Time, loc *time.Location) (Range, bool) {
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc).AddDate(0, -1, 0)
	full := monthRange(prev.Year(), prev.Month(), loc)

	switch match[1] {
	case "上旬":
		start := full.Start
		return Range{Start: start, End: start.AddDate(0, 0, 10)}, true
	case "中旬":
		start := full.Start.AddDate(0, 0, 10)
		return Range{Start: start, End: start.AddDate(0, 0, 10)}, true
	case "下旬":
		start := full.Start.AddDate(0, 0, 20)
		return Range{Start: start, End: full.End}, true
	default:
		return Range{}, false
	}
}

func resolveAbsoluteDate(match []string, now time.Time, loc *time.Location) (Range, bool) {
	year, yOk := parseASCIIDigits(match[1])
	month, mOk := parseASCIIDigits(match[2])
	day, dOk := parseASCIIDigits(match[3])
	if !yOk || !mOk || !dOk || month < 1 || month > 12 || day < 1 || day > 31 {
		return Range{}, false
	}
	return dayRange(time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)), true
}
