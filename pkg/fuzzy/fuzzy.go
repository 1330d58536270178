// Package fuzzy provides approximate substring matching with a bounded edit
// distance, tolerant of unicode diacritics.
package fuzzy

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Match is one approximate occurrence of a pattern inside a longer text.
// Start and End are rune offsets into the text.
type Match struct {
	Start    int
	End      int
	Distance int
}

type cell struct {
	dist  int
	start int
}

// FindNearest locates the closest approximate occurrence of pattern in text,
// allowing at most maxDist edits (insertions, deletions, substitutions).
// Among equally distant occurrences the leftmost wins. Rune comparison folds
// diacritics, so "blück" matches "black" at distance 1, not 2.
func FindNearest(pattern, text string, maxDist int) (Match, bool) {
	p := []rune(pattern)
	t := []rune(text)

	if len(p) == 0 {
		return Match{}, false
	}

	// Sellers' approximate matching: dp[j] is the edit distance of the full
	// pattern prefix against the best substring of text ending at rune j.
	// Each cell drags its substring start along so the match span can be
	// recovered without a second pass.
	prev := make([]cell, len(t)+1)
	cur := make([]cell, len(t)+1)
	for j := range prev {
		prev[j] = cell{dist: 0, start: j}
	}

	for i := 1; i <= len(p); i++ {
		cur[0] = cell{dist: i, start: 0}
		for j := 1; j <= len(t); j++ {
			sub := prev[j-1]
			if !runeEqualFold(p[i-1], t[j-1]) {
				sub.dist++
			}

			best := sub
			if del := (cell{dist: prev[j].dist + 1, start: prev[j].start}); del.dist < best.dist {
				best = del
			}
			if ins := (cell{dist: cur[j-1].dist + 1, start: cur[j-1].start}); ins.dist < best.dist {
				best = ins
			}
			cur[j] = best
		}
		prev, cur = cur, prev
	}

	found := false
	var m Match
	for j := 0; j <= len(t); j++ {
		if prev[j].dist <= maxDist && (!found || prev[j].dist < m.Distance) {
			m = Match{Start: prev[j].start, End: j, Distance: prev[j].dist}
			found = true
		}
	}
	return m, found
}

// runeEqualFold compares two runes after stripping combining marks, so
// accented and plain forms of the same letter count as equal.
func runeEqualFold(a, b rune) bool {
	if a == b {
		return true
	}
	return foldRune(a) == foldRune(b)
}

func foldRune(r rune) rune {
	for _, d := range norm.NFKD.String(string(r)) {
		if !unicode.IsMark(d) {
			return d
		}
	}
	return r
}
