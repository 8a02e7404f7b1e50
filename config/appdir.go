package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appDataDir resolves the default per-user application directory for
// name, mirroring btcutil.AppDataDir's per-OS convention (APPDATA on
// Windows, ~/Library/Application Support on macOS, ~/.name elsewhere)
// without pulling in the whole btcutil module for one helper -- the
// teacher only reaches for btcutil for its Amount type, never for this.
func appDataDir(name string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "." + name
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, name)
		}
		return filepath.Join(home, name)
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", name)
	default:
		return filepath.Join(home, "."+name)
	}
}
