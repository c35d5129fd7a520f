package environment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/proc"
)

// fakeRunner answers by joined command line.
func fakeRunner(answers map[string]proc.Result, missing ...string) proc.Runner {
	return proc.Func(func(_ context.Context, c proc.Command) (proc.Result, error) {
		for _, m := range missing {
			if c.Name == m {
				return proc.Result{}, errors.New("executable file not found")
			}
		}
		key := strings.Join(c.Args, " ")
		if r, ok := answers[key]; ok {
			return r, nil
		}
		return proc.Result{ExitCode: 1}, nil
	})
}

func newChecker(t *testing.T, runner proc.Runner) *Checker {
	t.Helper()
	return &Checker{
		Runner:      runner,
		Interpreter: "python3",
		MinMajor:    3,
		MinMinor:    8,
		Dir:         t.TempDir(),
		FFmpegPath:  filepath.Join(t.TempDir(), "no-ffmpeg"),
	}
}

func TestCheckHealthyRuntime(t *testing.T) {
	c := newChecker(t, fakeRunner(map[string]proc.Result{
		"--version":        {Stdout: "Python 3.11.4\n"},
		"-m pip --version": {Stdout: "pip 23.2 from /usr/lib/python3/site-packages/pip (python 3.11)\n"},
	}))
	r := c.Check(context.Background())
	assert.True(t, r.OK())
	assert.NoError(t, r.Err())
	assert.Equal(t, "3.11.4", r.Version)
	assert.Contains(t, r.PackageManager, "pip 23.2")
	assert.NotEmpty(t, r.OS.Family)
}

func TestCheckOldRuntime(t *testing.T) {
	c := newChecker(t, fakeRunner(map[string]proc.Result{
		"--version": {Stderr: "Python 2.7.18\n"},
	}))
	r := c.Check(context.Background())
	assert.False(t, r.OK())
	assert.ErrorIs(t, r.Err(), ErrUnsupportedRuntime)
	assert.Equal(t, "2.7.18", r.Version)
}

func TestCheckMissingInterpreter(t *testing.T) {
	c := newChecker(t, fakeRunner(nil, "python3"))
	r := c.Check(context.Background())
	assert.False(t, r.OK())
	assert.ErrorIs(t, r.Err(), ErrUnsupportedRuntime)
}

func TestCheckMissingPip(t *testing.T) {
	c := newChecker(t, fakeRunner(map[string]proc.Result{
		"--version":        {Stdout: "Python 3.9.1"},
		"-m pip --version": {ExitCode: 1, Stderr: "No module named pip"},
	}))
	r := c.Check(context.Background())
	require.Error(t, r.PackageManagerErr)
	assert.Contains(t, r.PackageManagerErr.Error(), "No module named pip")
	assert.ErrorIs(t, r.Err(), ErrUnsupportedRuntime)
}

func TestCheckLocalFFmpeg(t *testing.T) {
	runner := fakeRunner(map[string]proc.Result{
		"--version":        {Stdout: "Python 3.12.0"},
		"-m pip --version": {Stdout: "pip 24.0"},
		"-version":         {Stdout: "ffmpeg version 6.1 Copyright\nbuilt with gcc"},
	})
	c := newChecker(t, runner)
	c.FFmpegPath = filepath.Join(c.Dir, "ffmpeg-custom")
	require.NoError(t, os.WriteFile(c.FFmpegPath, []byte("#!/bin/sh\n"), 0755))

	r := c.Check(context.Background())
	assert.NoError(t, r.FFmpegErr)
	assert.Equal(t, c.FFmpegPath, r.FFmpegPath)
	assert.Equal(t, "ffmpeg version 6.1 Copyright", r.FFmpegVersion)
}

func TestCheckLowDisk(t *testing.T) {
	c := newChecker(t, fakeRunner(map[string]proc.Result{
		"--version":        {Stdout: "Python 3.12.0"},
		"-m pip --version": {Stdout: "pip 24.0"},
	}))
	c.MinFreeDisk = ^uint64(0)
	r := c.Check(context.Background())
	require.NoError(t, r.DiskErr)
	assert.True(t, r.LowDisk)
	assert.True(t, r.OK(), "low disk is only a warning")
}

func TestParseVersionOutput(t *testing.T) {
	v, major, minor, err := ParseVersionOutput("Python 3.8\n")
	require.NoError(t, err)
	assert.Equal(t, "3.8", v)
	assert.Equal(t, 3, major)
	assert.Equal(t, 8, minor)

	_, _, _, err = ParseVersionOutput("command not found")
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	s := console.NewScript()
	Print(s, Result{
		OS:          OSInfo{Family: "linux", Platform: "ubuntu", Version: "22.04", Arch: "x86_64"},
		Interpreter: "python3",
		Version:     "3.11.4",
		FFmpegErr:   errors.New("ffmpeg not found"),
		FreeDisk:    5 << 30,
	})
	out := s.Output()
	assert.Contains(t, out, "linux ubuntu 22.04 (x86_64)")
	assert.Contains(t, out, "python3 3.11.4")
	assert.Contains(t, out, "FFmpeg not found")
	assert.Contains(t, out, "5.0 GiB")
}
