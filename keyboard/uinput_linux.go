//go:build linux

package keyboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit  = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate = 0x5501     // UI_DEV_CREATE
)

// input event types from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
)

const (
	busUSB     = 0x03
	deviceName = "scriba-keys"
)

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

var (
	fd     *os.File
	fdOnce sync.Once
	fdErr  error
)

func ioctl(f *os.File, req, arg uintptr) error {
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
		return errno
	}
	return nil
}

// Init creates the virtual keyboard once.
func Init() error {
	fdOnce.Do(func() {
		fd, fdErr = createDevice()
	})
	return fdErr
}

func createDevice() (*os.File, error) {
	path := "/dev/uinput"
	if _, err := os.Stat(path); err != nil {
		path = "/dev/input/uinput"
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New("uinput device not found, try: sudo modprobe uinput")
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	if err := setup(f); err != nil {
		f.Close()
		return nil, err
	}
	// Give compositor time to recognize the new input device
	time.Sleep(200 * time.Millisecond)
	return f, nil
}

func setup(f *os.File) error {
	if err := ioctl(f, uiSetEvbit, evKey); err != nil {
		return err
	}
	if err := ioctl(f, uiSetEvbit, evSyn); err != nil {
		return err
	}
	// Register all standard keys so udev classifies this as a keyboard
	for i := uintptr(0); i < 256; i++ {
		if err := ioctl(f, uiSetKeybit, i); err != nil {
			return err
		}
	}
	dev := uinputUserDev{}
	copy(dev.Name[:], deviceName)
	dev.ID.Bustype = busUSB
	dev.ID.Vendor = 0x1234
	dev.ID.Product = 0x5679
	dev.ID.Version = 1
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return err
	}
	return ioctl(f, uiDevCreate, 0)
}

func writeEvent(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	return binary.Write(fd, binary.LittleEndian, &ev)
}

func syn() error {
	return writeEvent(evSyn, 0, 0)
}

func press(code uint16, value int32) error {
	if err := writeEvent(evKey, code, value); err != nil {
		return err
	}
	return syn()
}

func keyTap(code uint16, shift bool) error {
	if shift {
		if err := press(keyLeftShift, 1); err != nil {
			return err
		}
	}
	if err := press(code, 1); err != nil {
		return err
	}
	if err := press(code, 0); err != nil {
		return err
	}
	if shift {
		return press(keyLeftShift, 0)
	}
	return nil
}

func typeText(text string) error {
	if err := Init(); err != nil {
		return err
	}
	for _, r := range text {
		code, shift, _ := charToKey(r)
		if err := keyTap(code, shift); err != nil {
			return err
		}
	}
	return nil
}

func tapBackspace(n int) error {
	if err := Init(); err != nil {
		return err
	}
	for range n {
		if err := keyTap(keyBackspace, false); err != nil {
			return err
		}
	}
	return nil
}

func tapPaste() error {
	if err := Init(); err != nil {
		return err
	}
	if err := press(keyLeftCtrl, 1); err != nil {
		return err
	}
	// Let compositor register modifier state
	time.Sleep(5 * time.Millisecond)
	if err := press(keyV, 1); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	if err := press(keyV, 0); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	return press(keyLeftCtrl, 0)
}

// Verify creates the uinput device, sends a backspace, and reads it back
// from the kernel input layer to confirm delivery.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}

	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	var evdevPath string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == deviceName {
			evdevPath = filepath.Join("/dev/input", e.Name())
			break
		}
	}
	if evdevPath == "" {
		return "", errors.New(deviceName + " evdev device not found")
	}

	evdev, err := os.Open(evdevPath)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", evdevPath, err)
	}
	defer evdev.Close()

	if err := keyTap(keyBackspace, false); err != nil {
		return "", fmt.Errorf("keystroke send: %w", err)
	}

	type result struct {
		seen bool
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 24*32)
		n, err := evdev.Read(buf)
		if err != nil {
			ch <- result{err: err}
			return
		}
		var r result
		for i := 0; i+24 <= n; i += 24 {
			if binary.LittleEndian.Uint16(buf[i+16:]) == evKey &&
				binary.LittleEndian.Uint16(buf[i+18:]) == keyBackspace {
				r.seen = true
			}
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading events: %w", r.err)
		}
		if !r.seen {
			return "", errors.New("backspace event missing")
		}
		return fmt.Sprintf("keystroke verified via %s", evdevPath), nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}
