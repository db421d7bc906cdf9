package reconcile

import (
	"fmt"
	"unicode/utf8"
)

type OpKind int

const (
	OpAppend OpKind = iota
	OpDeleteBack
	OpCommit
)

func (k OpKind) String() string {
	switch k {
	case OpAppend:
		return "append"
	case OpDeleteBack:
		return "delete_back"
	case OpCommit:
		return "commit"
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one output operation. Count is in runes. A commit carries the
// committed utterance text.
type Op struct {
	Kind  OpKind
	Text  string
	Count int
}

func Append(text string) Op { return Op{Kind: OpAppend, Text: text} }

func DeleteBack(count int) Op { return Op{Kind: OpDeleteBack, Count: count} }

func Commit(text string) Op { return Op{Kind: OpCommit, Text: text} }

func (o Op) String() string {
	switch o.Kind {
	case OpAppend:
		return fmt.Sprintf("append(%q)", o.Text)
	case OpDeleteBack:
		return fmt.Sprintf("delete_back(%d)", o.Count)
	case OpCommit:
		return fmt.Sprintf("commit(%q)", o.Text)
	}
	return o.Kind.String()
}

// Replay applies ops to buf the way a text field would. Commits do not
// change the buffer.
func Replay(buf string, ops []Op) string {
	for _, op := range ops {
		switch op.Kind {
		case OpAppend:
			buf += op.Text
		case OpDeleteBack:
			buf = trimRunes(buf, op.Count)
		}
	}
	return buf
}

func trimRunes(s string, n int) string {
	for ; n > 0 && s != ""; n-- {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return s
}
