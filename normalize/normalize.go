// Package normalize turns recognizer tokens into the literal text a user
// meant to type. Spoken numbers become digits, punctuation words become
// symbols and a small set of programming terms become their literals.
//
// The output is split into segments, one per emitted unit, so callers can
// diff two renderings at token granularity instead of by character.
package normalize

import "strings"

// Segment is one normalized output unit.
type Segment struct {
	Text string

	// First and Last delimit the source tokens [First, Last) that produced Text.
	First, Last int

	// Start and End are byte offsets of Text inside Output.Text. The
	// separator in front of a segment belongs to the gap before Start.
	Start, End int
}

// Output is the rendering of a whole token sequence.
type Output struct {
	Text     string
	Segments []Segment
}

// Normalize renders tokens as text. It never fails.
func Normalize(tokens []string) string {
	return Parse(tokens).Text
}

// Parse renders tokens and keeps the segment boundaries.
func Parse(tokens []string) Output {
	var b builder
	for i := 0; i < len(tokens); {
		if tokens[i] == "" {
			i++
			continue
		}
		if sym, n := matchTerm(tokens, i); n > 0 {
			b.add(sym, i, i+n)
			i += n
			continue
		}
		if num, n := matchNumber(tokens, i); n > 0 {
			b.add(num, i, i+n)
			i += n
			continue
		}
		b.add(tokens[i], i, i+1)
		i++
	}
	return Output{Text: b.sb.String(), Segments: b.segs}
}

type builder struct {
	sb   strings.Builder
	segs []Segment
}

func (b *builder) add(text string, first, last int) {
	if n := len(b.segs); n > 0 && !joined(b.segs[n-1].Text, text) {
		b.sb.WriteByte(' ')
	}
	start := b.sb.Len()
	b.sb.WriteString(text)
	b.segs = append(b.segs, Segment{
		Text:  text,
		First: first,
		Last:  last,
		Start: start,
		End:   b.sb.Len(),
	})
}

var (
	noSpaceBefore = map[string]bool{
		";": true, ")": true, "]": true, "}": true,
		",": true, ":": true, ".": true, "_": true,
	}
	noSpaceAfter = map[string]bool{
		"(": true, "[": true, "{": true, ".": true, "_": true,
	}
)

// joined reports whether next is written directly after prev.
func joined(prev, next string) bool {
	return noSpaceAfter[prev] || noSpaceBefore[next]
}

// Equal reports whether two outputs render the same segments.
func (o Output) Equal(other Output) bool {
	return CommonPrefix(o, other) == len(o.Segments) && len(o.Segments) == len(other.Segments)
}

// CommonPrefix returns how many leading segments a and b share.
func CommonPrefix(a, b Output) int {
	n := min(len(a.Segments), len(b.Segments))
	for i := 0; i < n; i++ {
		if a.Segments[i].Text != b.Segments[i].Text {
			return i
		}
	}
	return n
}

// PrefixEnd is the byte offset where the first k segments end.
func (o Output) PrefixEnd(k int) int {
	if k <= 0 || len(o.Segments) == 0 {
		return 0
	}
	return o.Segments[k-1].End
}

// Segments returns only the segment list of Parse(tokens).
func Segments(tokens []string) []Segment {
	return Parse(tokens).Segments
}
