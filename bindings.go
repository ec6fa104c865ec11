package exqlite

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// LibraryPathEnv names the environment variable consulted for the libsqlite3 location.
const LibraryPathEnv = "EXQLITE_LIB_PATH"

// Config controls how the native library is located and where diagnostics go.
type Config struct {
	// LibraryPath is tried before $EXQLITE_LIB_PATH and the platform defaults.
	LibraryPath string
	Logger      *zap.Logger
}

var (
	loadOnce sync.Once
	loadErr  error
	loadPath string
)

// Setup loads libsqlite3 with the given configuration. Only the first call
// (or the first Open, whichever comes first) decides which library is used;
// later calls return the outcome of that load.
func Setup(cfg Config) error {
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
	}
	loadOnce.Do(func() { loadPath, loadErr = load(cfg) })
	return loadErr
}

// LibVersion reports the version string of the loaded libsqlite3.
func LibVersion() (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	return sqlite3_libversion(), nil
}

// LibPath reports where libsqlite3 was loaded from.
func LibPath() string {
	if ensureLoaded() != nil {
		return ""
	}
	return loadPath
}

func ensureLoaded() error {
	loadOnce.Do(func() { loadPath, loadErr = load(Config{}) })
	return loadErr
}

func libraryCandidates(cfg Config) []string {
	var candidates []string
	if cfg.LibraryPath != "" {
		candidates = append(candidates, cfg.LibraryPath)
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		candidates = append(candidates, env)
	}
	return append(candidates, platformLibraryNames()...)
}

func load(cfg Config) (string, error) {
	var errs []error
	for _, path := range libraryCandidates(cfg) {
		handle, err := openLibrary(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if err := register_sqlite3(handle); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		Logger().Debug("loaded sqlite3 library",
			zap.String("path", path),
			zap.String("version", sqlite3_libversion()),
			zap.Int("threadsafe", sqlite3_threadsafe()))
		return path, nil
	}
	return "", &Error{
		Kind:    KindLibraryUnavailable,
		Message: "unable to load sqlite3 library: " + errors.Join(errs...).Error(),
	}
}
