package decoder

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Partial Kind = iota
	Final
)

func (k Kind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Final:
		return "final"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Hypothesis is one recognition guess for the open utterance. Revision
// starts at 1 for each utterance and grows with every emitted hypothesis.
// Confidence is only meaningful when Scored is set.
type Hypothesis struct {
	Tokens     []string
	Confidence float64
	Scored     bool
	Revision   int
	Kind       Kind
}

func (h Hypothesis) Empty() bool { return len(h.Tokens) == 0 }

type EventType int

const (
	EventPartial EventType = iota
	EventFinal
	EventReset
)

func (t EventType) String() string {
	switch t {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventReset:
		return "reset"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Reset reasons.
const (
	ReasonClosed   = "closed"
	ReasonCanceled = "canceled"
	ReasonError    = "decoder error"
	// ReasonDeviceChanged marks a session canceled with ErrDeviceChanged
	// because the capture device went away or came back.
	ReasonDeviceChanged = "device changed"
)

// ErrDeviceChanged is the cancel cause that turns a canceled session's
// Reset into ReasonDeviceChanged.
var ErrDeviceChanged = errors.New("capture device changed")

type Event struct {
	Type       EventType
	Hypothesis Hypothesis
	Reason     string // Reset only
}

func PartialEvent(h Hypothesis) Event {
	h.Kind = Partial
	return Event{Type: EventPartial, Hypothesis: h}
}

func FinalEvent(h Hypothesis) Event {
	h.Kind = Final
	return Event{Type: EventFinal, Hypothesis: h}
}

func ResetEvent(reason string) Event {
	return Event{Type: EventReset, Reason: reason}
}

func (e Event) String() string {
	switch e.Type {
	case EventReset:
		return fmt.Sprintf("reset(%s)", e.Reason)
	case EventFinal:
		if e.Hypothesis.Scored {
			return fmt.Sprintf("final#%d %q @%.2f", e.Hypothesis.Revision, e.Hypothesis.Tokens, e.Hypothesis.Confidence)
		}
		return fmt.Sprintf("final#%d %q", e.Hypothesis.Revision, e.Hypothesis.Tokens)
	}
	return fmt.Sprintf("partial#%d %q", e.Hypothesis.Revision, e.Hypothesis.Tokens)
}
