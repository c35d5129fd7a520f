//go:build windows

package service

import "os/exec"

func configure(*exec.Cmd) {}

// Windows has no SIGTERM for console processes; terminate is a kill.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
