//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode left behind by the device picker or an
// interrupted evdev read.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
