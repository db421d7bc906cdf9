package audio

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// FindDevice looks a capture device up by name. An empty name is the
// system default and returns nil.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("capture device %q not found", name)
}

// SelectDevice presents an interactive device picker and returns the selected device.
// If only one device is available, it returns that device without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return nil, fmt.Errorf("no capture devices found")
	case 1:
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	render := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select input device (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			tag := ""
			if IsBluetooth(d.Name) {
				tag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
			}
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
			} else {
				fmt.Printf("    %s%s\r\n", d.Name, tag)
			}
		}
	}
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("reading input: %w", err)
		}
		switch key := readKey(buf[:n]); key {
		case keyEnter:
			fmt.Print("\r\n")
			return &devices[cursor], nil
		case keyAbort:
			fmt.Print("\r\n")
			return nil, fmt.Errorf("device selection aborted")
		case keyUp:
			cursor = max(cursor-1, 0)
		case keyDown:
			cursor = min(cursor+1, len(devices)-1)
		}
		fmt.Printf("\x1b[%dA", len(devices)+2)
		render()
	}
}

type pickerKey int

const (
	keyOther pickerKey = iota
	keyEnter
	keyAbort
	keyUp
	keyDown
)

func readKey(b []byte) pickerKey {
	if len(b) == 1 {
		switch b[0] {
		case 13:
			return keyEnter
		case 3: // Ctrl+C
			return keyAbort
		case 'k':
			return keyUp
		case 'j':
			return keyDown
		}
	}
	if len(b) == 3 && b[0] == 0x1b && b[1] == '[' {
		switch b[2] {
		case 'A':
			return keyUp
		case 'B':
			return keyDown
		}
	}
	return keyOther
}
