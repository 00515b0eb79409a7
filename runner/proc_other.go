//go:build !unix

package runner

import (
	"os"
	"os/exec"
)

// configureProcessGroup falls back to killing only the direct child
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}

// exitedNormally cannot tell a kill from an exit here, so it never claims one
func exitedNormally(*os.ProcessState) bool {
	return false
}
