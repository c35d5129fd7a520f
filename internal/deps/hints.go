package deps

import (
	"github.com/kayz/teachcut/internal/console"
)

// PrintHints prints platform-specific advice after a failed install.
func PrintHints(c console.Console, goos string) {
	switch goos {
	case "windows":
		console.Hint(c, "Windows:")
		c.Println("   - Install the Microsoft Visual C++ Redistributable")
		c.Println("   - If OpenCV fails to build, install Visual Studio Build Tools")
	case "linux":
		console.Hint(c, "Linux:")
		c.Println("   - You may need: sudo apt-get install python3-dev libffi-dev")
		c.Println("   - OpenCV: sudo apt-get install libopencv-dev")
	case "darwin":
		console.Hint(c, "macOS:")
		c.Println("   - Install the Xcode Command Line Tools")
		c.Println("   - OpenCV via Homebrew: brew install opencv")
	}
	PrintVirtualenvHint(c)
}

func PrintVirtualenvHint(c console.Console) {
	console.Hint(c, "A virtual environment is recommended:")
	c.Println("   python -m venv venv")
	c.Println("   # Windows:      venv\\Scripts\\activate")
	c.Println("   # Linux/macOS:  source venv/bin/activate")
}
