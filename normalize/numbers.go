package normalize

import (
	"strconv"
	"strings"
)

type wordKind int

const (
	kindNone wordKind = iota
	kindZero
	kindUnit
	kindTeen
	kindTens
	kindHundred
	kindScale
)

type numberWord struct {
	value int64
	kind  wordKind
}

var numberWords = map[string]numberWord{
	"zero": {0, kindZero},

	"one": {1, kindUnit}, "two": {2, kindUnit}, "three": {3, kindUnit},
	"four": {4, kindUnit}, "five": {5, kindUnit}, "six": {6, kindUnit},
	"seven": {7, kindUnit}, "eight": {8, kindUnit}, "nine": {9, kindUnit},

	"ten": {10, kindTeen}, "eleven": {11, kindTeen}, "twelve": {12, kindTeen},
	"thirteen": {13, kindTeen}, "fourteen": {14, kindTeen}, "fifteen": {15, kindTeen},
	"sixteen": {16, kindTeen}, "seventeen": {17, kindTeen}, "eighteen": {18, kindTeen},
	"nineteen": {19, kindTeen},

	"twenty": {20, kindTens}, "thirty": {30, kindTens}, "forty": {40, kindTens},
	"fifty": {50, kindTens}, "sixty": {60, kindTens}, "seventy": {70, kindTens},
	"eighty": {80, kindTens}, "ninety": {90, kindTens},

	"hundred": {100, kindHundred},

	"thousand": {1_000, kindScale},
	"million":  {1_000_000, kindScale},
	"billion":  {1_000_000_000, kindScale},
	"trillion": {1_000_000_000_000, kindScale},
}

func lookupNumber(tok string) (numberWord, bool) {
	w, ok := numberWords[strings.ToLower(tok)]
	return w, ok
}

// phrase accumulates one integer literal under English numeral grammar.
type phrase struct {
	total      int64 // sum of groups already multiplied by a scale word
	group      int64 // current group below the last scale word
	scale      int64 // smallest scale consumed so far, 0 if none
	hasHundred bool
	closed     bool
	last       wordKind
}

// accepts reports whether w extends the phrase grammatically.
func (p *phrase) accepts(w numberWord) bool {
	if p.closed {
		return false
	}
	switch w.kind {
	case kindUnit:
		return p.last == kindTens || p.last == kindHundred || p.last == kindScale
	case kindTeen, kindTens:
		return p.last == kindHundred || p.last == kindScale
	case kindHundred:
		// "twenty hundred" only opens a phrase; after a scale word the
		// group must be a single digit.
		return !p.hasHundred && p.group > 0 && p.last != kindScale &&
			(p.group < 10 || (p.scale == 0 && p.group < 100))
	case kindScale:
		return p.group > 0 && p.last != kindScale && (p.scale == 0 || w.value < p.scale)
	}
	return false
}

func (p *phrase) push(w numberWord) {
	switch w.kind {
	case kindZero:
		p.closed = true
	case kindUnit, kindTeen, kindTens:
		p.group += w.value
	case kindHundred:
		p.group *= 100
		p.hasHundred = true
	case kindScale:
		p.total += p.group * w.value
		p.group = 0
		p.scale = w.value
		p.hasHundred = false
	}
	p.last = w.kind
}

func (p *phrase) value() int64 {
	return p.total + p.group
}

// allowsAnd reports whether "and" may join the next word ("one hundred and five").
func (p *phrase) allowsAnd() bool {
	return !p.closed && (p.last == kindHundred || p.last == kindScale)
}

// matchNumber parses the longest number phrase starting at tokens[start].
// It returns the literal and the number of tokens consumed, or 0 when
// tokens[start] cannot open a phrase. A phrase left dangling on a connector
// at the end of the stream is returned unconverted.
//
// Ambiguous tails are resolved by preferring to extend the current phrase:
// "two hundred five" is 205, never "200 5".
func matchNumber(tokens []string, start int) (string, int) {
	first, ok := lookupNumber(tokens[start])
	if !ok || first.kind == kindHundred || first.kind == kindScale {
		return "", 0
	}

	var p phrase
	p.push(first)
	i := start + 1

	for i < len(tokens) {
		if termStartsAt(tokens, i) {
			break
		}
		tok := strings.ToLower(tokens[i])

		if tok == "and" && p.allowsAnd() {
			if i+1 == len(tokens) {
				return raw(tokens, start), len(tokens) - start
			}
			next, ok := lookupNumber(tokens[i+1])
			if !ok || next.kind == kindHundred || next.kind == kindScale || !p.accepts(next) {
				break
			}
			p.push(next)
			i += 2
			continue
		}

		if tok == "point" {
			digits := decimalDigits(tokens, i+1)
			if digits == "" {
				if i+1 == len(tokens) {
					return raw(tokens, start), len(tokens) - start
				}
				break
			}
			lit := strconv.FormatInt(p.value(), 10) + "." + digits
			return lit, i + 1 + len(digits) - start
		}

		w, ok := lookupNumber(tok)
		if !ok || !p.accepts(w) {
			break
		}
		p.push(w)
		i++
	}

	return strconv.FormatInt(p.value(), 10), i - start
}

// decimalDigits reads single digit words after "point".
func decimalDigits(tokens []string, from int) string {
	var sb strings.Builder
	for j := from; j < len(tokens); j++ {
		w, ok := lookupNumber(tokens[j])
		if !ok || (w.kind != kindZero && w.kind != kindUnit) {
			break
		}
		sb.WriteByte(byte('0' + w.value))
	}
	return sb.String()
}

func raw(tokens []string, start int) string {
	return strings.Join(tokens[start:], " ")
}
