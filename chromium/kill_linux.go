//go:build linux
// +build linux

package chromium

import (
	"os/exec"
	"syscall"
)

// KillAfterParent arranges for the browser process to be killed when the
// launching process dies, so an aborted run cannot leak headless Chromes.
func KillAfterParent(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = new(syscall.SysProcAttr)
	}
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}
