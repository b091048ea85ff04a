// Package profile namespaces collab's on-disk state. Each profile owns a
// directory holding the message database, logs, lock file and admin socket.
package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns $COLLAB_HOME, or ~/.collab when unset.
func BaseDir() string {
	if dir := os.Getenv("COLLAB_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".collab")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the admin UDS path for a profile.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "collabd.sock")
}

// DBPath returns the message database path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "messages.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file of the named binary, e.g. collabd.log.
func LogPath(name, binary string) string {
	return filepath.Join(LogDir(name), binary+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
