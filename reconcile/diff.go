package reconcile

import (
	"unicode/utf8"

	"scriba/normalize"
)

// Diff returns the ops that turn the rendering of prev into next. The
// shared segment prefix is kept, the rest of prev is deleted and the rest
// of next appended. Equal renderings give no ops.
func Diff(prev, next normalize.Output) []Op {
	k := normalize.CommonPrefix(prev, next)
	var ops []Op
	if n := utf8.RuneCountInString(prev.Text[prev.PrefixEnd(k):]); n > 0 {
		ops = append(ops, DeleteBack(n))
	}
	if tail := next.Text[next.PrefixEnd(k):]; tail != "" {
		ops = append(ops, Append(tail))
	}
	return ops
}
