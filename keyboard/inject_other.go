//go:build darwin || windows

package keyboard

import (
	"runtime"
	"sync"

	"github.com/micmonay/keybd_event"
)

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
	kbMu   sync.Mutex
)

func Init() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
	})
	return kbErr
}

// Without a per-character keymap every append goes through the clipboard.
func typable(string) bool { return false }

func typeText(text string) error { return pasteText(text) }

func tapPaste() error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true) // Cmd+V on macOS
	} else {
		kb.HasCTRL(true)
	}
	err := kb.Launching()
	kb.HasSuper(false)
	kb.HasCTRL(false)
	return err
}

func tapBackspace(n int) error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	kb.SetKeys(keybd_event.VK_BACKSPACE)
	for range n {
		if err := kb.Launching(); err != nil {
			return err
		}
	}
	return nil
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	return "keyboard event binding OK", nil
}
