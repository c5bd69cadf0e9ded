package pipeline

import (
	"sort"
	"strings"
)

// NaturalLess reports whether a orders before b the way a human reads
// file names: runs of digits compare as integers of any length, text
// compares case-insensitively, and a name that runs out of tokens first
// sorts first. "page2.png" orders before "page10.png".
//
// Names are consumed as alternating text and digit runs starting with a
// possibly-empty text run, so the two sides always hold the same kind
// of token at the same position.
func NaturalLess(a, b string) bool {
	for {
		at, a2 := splitText(a)
		bt, b2 := splitText(b)
		if c := strings.Compare(strings.ToLower(at), strings.ToLower(bt)); c != 0 {
			return c < 0
		}
		a, b = a2, b2
		if a == "" || b == "" {
			return len(a) < len(b)
		}

		ad, a3 := splitDigits(a)
		bd, b3 := splitDigits(b)
		if c := compareDigitRuns(ad, bd); c != 0 {
			return c < 0
		}
		a, b = a3, b3
		if a == "" || b == "" {
			return len(a) < len(b)
		}
	}
}

// SortNatural orders paths in place under NaturalLess. The sort is
// stable so case-insensitive ties keep their input order.
func SortNatural(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return NaturalLess(paths[i], paths[j])
	})
}

// splitText cuts the leading non-digit run off s.
func splitText(s string) (run, rest string) {
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// splitDigits cuts the leading digit run off s.
func splitDigits(s string) (run, rest string) {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return s[:i], s[i:]
		}
	}
	return s, ""
}

// compareDigitRuns compares two digit runs as non-negative integers of
// arbitrary size: after stripping leading zeros the longer run is the
// larger number, and equal lengths compare lexically.
func compareDigitRuns(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
