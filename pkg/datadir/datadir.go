// Package datadir resolves where the orchestrator keeps its files when the
// configuration names them without a directory.
package datadir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
)

const DefaultAppName = "hsu-orchestrator"

// ServiceContext selects OS conventions for data and log directories.
type ServiceContext string

const (
	// SystemService runs as a daemon: /var/lib, /var/log, ProgramData.
	SystemService ServiceContext = "system"

	// UserService runs under a user account: XDG dirs, Application Support, LocalAppData.
	UserService ServiceContext = "user"

	// SessionService is cleaned up on logout.
	SessionService ServiceContext = "session"
)

type Config struct {
	// BaseDirectory overrides the OS default for both data and logs.
	BaseDirectory  string
	ServiceContext ServiceContext
	AppName        string
}

type Resolver struct {
	config Config
	logger logging.Logger
}

func NewResolver(config Config, logger logging.Logger) *Resolver {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}
	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}
	return &Resolver{config: config, logger: logger}
}

// ParseServiceContext accepts system, user and session; empty means user.
func ParseServiceContext(value string) (ServiceContext, error) {
	switch ServiceContext(value) {
	case "":
		return UserService, nil
	case SystemService, UserService, SessionService:
		return ServiceContext(value), nil
	default:
		return "", errors.NewValidationError("unsupported service context: "+value, nil).
			WithContext("supported_contexts", "system, user, session")
	}
}

// DataDirectory is where thought databases live.
func (r *Resolver) DataDirectory() string {
	if r.config.BaseDirectory != "" {
		return filepath.Join(r.config.BaseDirectory, "data")
	}
	return filepath.Join(r.dataBase(), r.config.AppName)
}

// LogDirectory is where rotated log files live.
func (r *Resolver) LogDirectory() string {
	if r.config.BaseDirectory != "" {
		return filepath.Join(r.config.BaseDirectory, "logs")
	}
	return filepath.Join(r.logBase(), r.config.AppName)
}

// DataFile places a bare file name in the data directory. Paths with a
// directory component are returned unchanged.
func (r *Resolver) DataFile(name string) string {
	return resolve(r.DataDirectory(), name)
}

// LogFile places a bare file name in the log directory. Paths with a
// directory component are returned unchanged.
func (r *Resolver) LogFile(name string) string {
	return resolve(r.LogDirectory(), name)
}

func resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) || filepath.Base(name) != name {
		return name
	}
	return filepath.Join(dir, name)
}

// Prepare creates the directory of path when missing and checks it is
// writable.
func (r *Resolver) Prepare(path string) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return errors.NewIOError("failed to access directory", err).WithContext("directory", dir)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewIOError("failed to create directory", err).WithContext("directory", dir)
		}
		r.logger.Infof("Created directory, path: %s", dir)
	} else if !info.IsDir() {
		return errors.NewValidationError("path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewIOError("directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)
	return nil
}

func (r *Resolver) dataBase() string {
	switch r.config.ServiceContext {
	case SystemService:
		switch runtime.GOOS {
		case "windows":
			return programData()
		case "darwin":
			return "/Library/Application Support"
		default:
			return "/var/lib"
		}
	case SessionService:
		return sessionBase()
	default:
		switch runtime.GOOS {
		case "windows":
			return localAppData()
		case "darwin":
			return filepath.Join(homeOr("/tmp"), "Library", "Application Support")
		default:
			if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
				return dataHome
			}
			return filepath.Join(homeOr("/tmp"), ".local", "share")
		}
	}
}

func (r *Resolver) logBase() string {
	switch r.config.ServiceContext {
	case SystemService:
		if runtime.GOOS == "windows" {
			return filepath.Join(programData(), "logs")
		}
		return "/var/log"
	case SessionService:
		return filepath.Join(sessionBase(), "logs")
	default:
		switch runtime.GOOS {
		case "windows":
			return filepath.Join(localAppData(), "logs")
		case "darwin":
			return filepath.Join(homeOr("/tmp"), "Library", "Logs")
		default:
			if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
				return stateHome
			}
			return filepath.Join(homeOr("/tmp"), ".local", "state")
		}
	}
}

func programData() string {
	if dir := os.Getenv("PROGRAMDATA"); dir != "" {
		return dir
	}
	return "C:\\ProgramData"
}

func localAppData() string {
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return dir
	}
	if profile := os.Getenv("USERPROFILE"); profile != "" {
		return filepath.Join(profile, "AppData", "Local")
	}
	return "C:\\Users\\Default\\AppData\\Local"
}

func sessionBase() string {
	if runtime.GOOS == "linux" {
		dir := fmt.Sprintf("/run/user/%d", os.Getuid())
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}
	return os.TempDir()
}

func homeOr(fallback string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return home
}
