// Package match reconciles locally pending work items against job numbers
// discovered on the portal, using item-category text similarity.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MatchThreshold is the minimum similarity score a candidate must exceed
// before a job number is committed to it.
const MatchThreshold = 30.0

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds item-category text for comparison: diacritics stripped,
// lower-cased, whitespace collapsed to single spaces.
func Normalize(s string) string {
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Score rates the similarity of two item-category strings on a 0-100 scale.
// The ladder is ordered by strength of evidence: exact equality, full
// containment, shared whole words, shared word fragments, then raw
// character overlap as a typo catch-all.
func Score(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == "" || b == "" {
		return 0
	}

	if a == b {
		return 100
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 90
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)

	inter, union := 0, len(wordsB)
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			inter++
		} else {
			union++
		}
	}
	if inter > 0 {
		return 70 + 20*(float64(inter)/float64(union))
	}

	for wa := range wordsA {
		if len(wa) < 3 {
			continue
		}
		for wb := range wordsB {
			if len(wb) < 3 {
				continue
			}
			if strings.Contains(wa, wb) || strings.Contains(wb, wa) {
				return 60
			}
		}
	}

	if len(a) > 3 && len(b) > 3 && charJaccard(a, b) > 0.70 {
		return 50
	}

	return 0
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}

// charJaccard computes set-of-characters Jaccard similarity.
func charJaccard(a, b string) float64 {
	setA := make(map[rune]struct{})
	for _, r := range a {
		setA[r] = struct{}{}
	}
	setB := make(map[rune]struct{})
	for _, r := range b {
		setB[r] = struct{}{}
	}

	inter, union := 0, len(setB)
	for r := range setA {
		if _, ok := setB[r]; ok {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
