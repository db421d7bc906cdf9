// Package keyboard injects text into the focused window.
package keyboard

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	cb "github.com/atotto/clipboard"
)

const (
	ModeType  = "type"
	ModePaste = "paste"
	ModeNone  = "none"
)

var (
	ErrUnknownMode = errors.New("unknown keyboard mode")
	ErrUnderflow   = errors.New("delete past start of buffer")
)

type Backend interface {
	Append(text string) error
	DeleteBack(count int) error
}

// New returns the backend for mode. Type mode sends one keystroke per
// character and falls back to a clipboard paste for text the keymap
// cannot express.
func New(mode string) (Backend, error) {
	switch mode {
	case ModeType, "":
		if err := Init(); err != nil {
			return nil, err
		}
		return typer{}, nil
	case ModePaste:
		if err := Init(); err != nil {
			return nil, err
		}
		return paster{}, nil
	case ModeNone:
		return Discard{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

type typer struct{}

func (typer) Append(text string) error {
	if typable(text) {
		return typeText(text)
	}
	return pasteText(text)
}

func (typer) DeleteBack(n int) error { return tapBackspace(n) }

type paster struct{}

func (paster) Append(text string) error { return pasteText(text) }

func (paster) DeleteBack(n int) error { return tapBackspace(n) }

func pasteText(text string) error {
	if err := cb.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return tapPaste()
}

// Discard drops everything.
type Discard struct{}

func (Discard) Append(string) error { return nil }

func (Discard) DeleteBack(int) error { return nil }

// Buffer is an in-memory screen. DeleteBack counts runes.
type Buffer struct {
	mu    sync.Mutex
	runes []rune
}

func (b *Buffer) Append(text string) error {
	if !utf8.ValidString(text) {
		return fmt.Errorf("invalid utf-8: %q", text)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = append(b.runes, []rune(text)...)
	return nil
}

// DeleteBack removes the last n runes. Deleting more than the buffer
// holds empties it and returns ErrUnderflow.
func (b *Buffer) DeleteBack(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.runes) {
		b.runes = b.runes[:0]
		return ErrUnderflow
	}
	b.runes = b.runes[:len(b.runes)-n]
	return nil
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.runes)
}

func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.runes = nil
}
