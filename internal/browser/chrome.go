package browser

import (
	"errors"
	"os"
	"os/exec"
	"runtime"

	"github.com/chromedp/chromedp"
	"github.com/lance13c/roster/internal/logging"
)

// ErrChromeNotFound is returned when no Chrome or Chromium binary can be located
var ErrChromeNotFound = errors.New("Chrome browser not found. Please install Chrome or Chromium")

// findChrome attempts to find Chrome executable
func findChrome() (string, error) {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		} else if resolved, err := exec.LookPath(path); err == nil {
			logging.Debug("Found Chrome at: %s", resolved)
			return resolved, nil
		}
	}

	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}

	return "", ErrChromeNotFound
}

// allocatorOptions returns the exec allocator flags used for the portal.
// The portal shows notification and popup prompts that block clicks when enabled.
func allocatorOptions(chromePath string, headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.WindowSize(1920, 1080),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)

	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	return opts
}
