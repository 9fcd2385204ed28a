//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr places the compiler in its own process group so the
// whole tree can be signalled at once.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
