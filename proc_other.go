//go:build !unix

package zipstream

import (
	"os"
	"os/exec"
)

// setProcessGroup is a no-op where process groups are unsupported.
func setProcessGroup(cmd *exec.Cmd) {}

func killProcessGroup(p *os.Process) error {
	return p.Kill()
}
