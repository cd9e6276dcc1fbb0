//go:build windows

package probe

import "os/exec"

func setupProcessGroup(*exec.Cmd) {}

// killProcessGroup kills the tool.  Descendants are left to WaitDelay.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
