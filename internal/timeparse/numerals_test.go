package timeparse

import "testing"

func TestParseChineseNumeral(t *testing.T) {
	cases := map[string]int{
		"零":  0,
		"三":  3,
		"十":  10,
		"十一": 11,
		"二十": 20,
		"二十一": 21,
		"九十九": 99,
		"两":  2,
	}
	for input, want := range cases {
		got, ok := parseChineseNumeral(input)
		if !ok {
			t.Fatalf("parseChineseNumeral(%q): expected ok", input)
		}
		if got != want {
			t.Errorf("parseChineseNumeral(%q) = %d, want %d", input, got, want)
		}
	}
}

func TestParseChineseNumeralInvalid(t *testing.T) {
	for _, input := range []string{"", "猫", "一十十"} {
		if _, ok := parseChineseNumeral(input); ok {
			t.Errorf("parseChineseNumeral(%q): expected not ok", input)
		}
	}
}

func TestParseQuantityASCII(t *testing.T) {
	n, ok := parseQuantity("15")
	if !ok || n != 15 {
		t.Fatalf("parseQuantity(15) = %d, %v", n, ok)
	}
}
