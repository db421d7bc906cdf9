package keyboard

import (
	"errors"
	"testing"
)

func TestBuffer(t *testing.T) {
	var b Buffer
	b.Append("x = ")
	b.Append("1025")
	if err := b.DeleteBack(2); err != nil {
		t.Fatal(err)
	}
	b.Append("30;")
	if got, want := b.String(), "x = 1030;"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBufferCountsRunes(t *testing.T) {
	var b Buffer
	b.Append("naïve → ok")
	if err := b.DeleteBack(4); err != nil {
		t.Fatal(err)
	}
	if got, want := b.String(), "naïve "; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBufferUnderflow(t *testing.T) {
	var b Buffer
	b.Append("ab")
	if err := b.DeleteBack(3); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("got %v, want ErrUnderflow", err)
	}
	if got := b.String(); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestBufferRejectsInvalidUTF8(t *testing.T) {
	var b Buffer
	if err := b.Append("\xff"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew(t *testing.T) {
	be, err := New(ModeNone)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := be.(Discard); !ok {
		t.Errorf("got %T, want Discard", be)
	}
	if err := be.Append("anything"); err != nil {
		t.Error(err)
	}

	if _, err := New("morse"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("got %v, want ErrUnknownMode", err)
	}
}
