package environment

import (
	"fmt"

	"github.com/kayz/teachcut/internal/console"
)

// Print writes one pass/fail/warn line per check.
func Print(c console.Console, r Result) {
	console.Pass(c, "Operating system: %s", r.OS)

	if r.RuntimeErr != nil {
		console.Fail(c, "Interpreter: %v", r.RuntimeErr)
		console.Hint(c, "Install Python 3.8 or newer and make sure it is on PATH")
	} else {
		console.Pass(c, "Interpreter: %s %s", r.Interpreter, r.Version)
	}

	switch {
	case r.RuntimeErr != nil:
	case r.PackageManagerErr != nil:
		console.Fail(c, "Package manager: %v", r.PackageManagerErr)
		console.Hint(c, "Run: %s -m ensurepip --upgrade", r.Interpreter)
	default:
		console.Pass(c, "Package manager: %s", r.PackageManager)
	}

	if r.FFmpegErr != nil {
		console.Warn(c, "FFmpeg not found, video processing will fail")
		console.Hint(c, "Install FFmpeg or place the binary in ./bin")
	} else {
		console.Pass(c, "FFmpeg: %s", r.FFmpegPath)
	}

	switch {
	case r.DiskErr != nil:
		console.Warn(c, "Free disk space unknown: %v", r.DiskErr)
	case r.LowDisk:
		console.Warn(c, "Low free disk space: %s", humanBytes(r.FreeDisk))
	default:
		console.Pass(c, "Free disk space: %s", humanBytes(r.FreeDisk))
	}
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
