//go:build windows

package process

import (
	"os"
	"syscall"
)

// Windows has no process group signals; every signal terminates.
func signalGroup(pid int, _ syscall.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
