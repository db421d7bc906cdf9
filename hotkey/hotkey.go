// Package hotkey watches the global Ctrl+Shift+Space combination that
// pauses and resumes listening.
package hotkey

// Combo is the key combination every backend listens for.
const Combo = "Ctrl+Shift+Space"

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}
