//go:build !linux
// +build !linux

package chromium

import "os/exec"

// KillAfterParent is a no-op outside Linux; Pdeathsig has no portable
// equivalent, so a killed parent leaves the child process orphaned.
func KillAfterParent(cmd *exec.Cmd) {}
