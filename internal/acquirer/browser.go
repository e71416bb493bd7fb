package acquirer

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// OpenBrowser opens url in the user's browser. The BROWSER environment
// variable takes precedence over the platform default opener.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	if browser := os.Getenv("BROWSER"); browser != "" {
		cmd = exec.Command(browser, url)
	} else {
		switch runtime.GOOS {
		case "linux", "freebsd", "openbsd":
			cmd = exec.Command("xdg-open", url)
		case "darwin":
			cmd = exec.Command("open", url)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
		default:
			return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
		}
	}

	// the browser outlives the command, do not wait for it
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
