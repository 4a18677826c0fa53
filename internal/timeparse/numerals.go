package timeparse

// cnDigits maps the Chinese numeral characters zero through nine,
// including the alternate "两" form of two, to their integer value.
var cnDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseChineseNumeral parses a Chinese numeral in [0,99], the range the
// package's quantity patterns (N天前, N周前, ...) ever need. A bare "十"
// means ten; "二十" means twenty; "三十五" means thirty-five. Returns
// false if s contains anything outside the zero-through-ninety-nine
// vocabulary.
func parseChineseNumeral(s string) (int, bool) {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0, false
	}

	tenIdx := -1
	for i, r := range runes {
		if r == '十' {
			tenIdx = i
			break
		}
	}

	if tenIdx < 0 {
		if len(runes) != 1 {
			return 0, false
		}
		d, ok := cnDigits[runes[0]]
		return d, ok
	}

	tens := 1
	if tenIdx > 0 {
		if tenIdx != 1 {
			return 0, false
		}
		d, ok := cnDigits[runes[0]]
		if !ok {
			return 0, false
		}
		tens = d
	}

	ones := 0
	if tenIdx < len(runes)-1 {
		rest := runes[tenIdx+1:]
		if len(rest) != 1 {
			return 0, false
		}
		d, ok := cnDigits[rest[0]]
		if !ok {
			return 0, false
		}
		ones = d
	}

	return tens*10 + ones, true
}

// parseQuantity parses a quantity that may be written as ASCII digits or
// as a Chinese numeral, as used by the "N天前"-style patterns.
func parseQuantity(s string) (int, bool) {
	if n, ok := parseASCIIDigits(s); ok {
		return n, true
	}
	return parseChineseNumeral(s)
}

func parseASCIIDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
