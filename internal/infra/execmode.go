package infra

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// ExecMode represents whether the tracker runs for one user or system-wide.
type ExecMode string

const (
	// ExecModeUser keeps data under the invoking user's home (no sudo required)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps data in a shared system directory (sudo required)
	ExecModeSystem ExecMode = "system"
)

const appDirName = "usagemon"

// ExecModeConfig holds paths based on execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Where the encrypted database and key live
	LogPath string // Where the daemon log is written
	IsRoot  bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:    ExecModeSystem,
			DataDir: filepath.Join("/var/lib", appDirName),
			LogPath: filepath.Join("/var/log", appDirName+".log"),
			IsRoot:  true,
		}
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode paths regardless of current euid.
// Under sudo the invoking user's home is used.
func GetUserModeConfig() *ExecModeConfig {
	dataDir := filepath.Join(GetRealUserHome(), "."+appDirName)
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: dataDir,
		LogPath: filepath.Join(dataDir, appDirName+".log"),
		IsRoot:  os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so SUDO_USER is consulted first.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}

// ExpandHome expands a leading ~ to the real user's home directory.
func ExpandHome(path string) string {
	return expandHomeWith(path, GetRealUserHome())
}

func expandHomeWith(path, home string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

// ResolvePaths fills empty data and log paths from the execution mode and
// expands ~ in configured ones.
func ResolvePaths(dataDir, logPath string) (string, string) {
	mode := DetectExecMode()
	if dataDir == "" {
		dataDir = mode.DataDir
		if logPath == "" {
			logPath = mode.LogPath
		}
	}
	dataDir = ExpandHome(dataDir)
	if logPath == "" {
		logPath = filepath.Join(dataDir, appDirName+".log")
	}
	return dataDir, ExpandHome(logPath)
}
