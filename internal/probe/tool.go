package probe

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

// toolWaitDelay bounds how long output pipes are drained once a tool
// has exited or been killed.  A grandchild that inherited stdout can
// otherwise hold the check open for as long as it lives.
const toolWaitDelay = 500 * time.Millisecond

// toolCommand builds an external tool invocation bound to ctx.  The
// tool runs in its own process group and cancellation kills the whole
// group.
func toolCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = toolWaitDelay
	return cmd
}

// toolExited drops exec.ErrWaitDelay: the tool itself exited cleanly
// and only a stray descendant kept the pipes open.
func toolExited(err error) error {
	if errors.Is(err, exec.ErrWaitDelay) {
		return nil
	}
	return err
}
