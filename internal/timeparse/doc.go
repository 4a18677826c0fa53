// Package timeparse extracts zero or more absolute half-open day ranges
// from free text. It is locale-driven: a table of literal phrases mapped
// to day offsets, and a table of regex patterns each tagged with a kind
// (daysAgo, weeksAgo, monthsAgo, lastWeekday, thisWeek, lastWeek,
// thisMonth, lastMonth, and the three ten-day subdivisions of last month).
//
// The package is pure and side-effect-free: Parse takes "now" as an
// explicit parameter rather than reading the clock, so results are fully
// deterministic and Parse(Parse(t).Render()) always reproduces a subset of
// Parse(t) (idempotence). Each pattern-table entry pairs a tagged regex
// with its resolver; more specific entries come first and claim their
// matched spans.
package timeparse
