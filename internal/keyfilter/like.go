package keyfilter

import "strings"

type likeKind uint8

const (
	likeLiteral likeKind = iota
	likeAnyOne           // _
	likeAnySeq           // %
)

type likeElem struct {
	kind likeKind
	r    rune
}

func compileLike(pattern string) []likeElem {
	var elems []likeElem
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			elems = append(elems, likeElem{kind: likeLiteral, r: r})
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			elems = append(elems, likeElem{kind: likeAnySeq})
		case r == '_':
			elems = append(elems, likeElem{kind: likeAnyOne})
		default:
			elems = append(elems, likeElem{kind: likeLiteral, r: r})
		}
	}
	// Parse rejects a trailing escape; a Like built directly keeps it literal.
	if escaped {
		elems = append(elems, likeElem{kind: likeLiteral, r: '\\'})
	}
	return elems
}

// trailingEscape reports whether pattern ends in a backslash that escapes
// nothing. ClickHouse rejects such patterns.
func trailingEscape(pattern string) bool {
	run := 0
	for i := len(pattern) - 1; i >= 0 && pattern[i] == '\\'; i-- {
		run++
	}
	return run%2 == 1
}

// matchLike reports whether s matches the LIKE pattern.
//
// On a mismatch the match resumes one rune further after the most recent %.
func matchLike(s, pattern string, caseInsensitive bool) bool {
	if caseInsensitive {
		s = strings.ToLower(s)
		pattern = strings.ToLower(pattern)
	}
	text := []rune(s)
	elems := compileLike(pattern)

	ti, pi := 0, 0
	starPi, starTi := -1, 0
	for ti < len(text) {
		if pi < len(elems) {
			e := elems[pi]
			switch {
			case e.kind == likeAnySeq:
				starPi, starTi = pi, ti
				pi++
				continue
			case e.kind == likeAnyOne, e.kind == likeLiteral && e.r == text[ti]:
				ti++
				pi++
				continue
			}
		}
		if starPi < 0 {
			return false
		}
		pi = starPi + 1
		starTi++
		ti = starTi
	}
	for pi < len(elems) && elems[pi].kind == likeAnySeq {
		pi++
	}
	return pi == len(elems)
}
