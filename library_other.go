//go:build !darwin && !freebsd && !linux && !windows

package exqlite

import (
	"fmt"
	"runtime"
)

func platformLibraryNames() []string { return nil }

func openLibrary(path string) (uintptr, error) {
	return 0, fmt.Errorf("loading %s: dynamic libraries are not supported on %s", path, runtime.GOOS)
}
