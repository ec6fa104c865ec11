//go:build darwin || freebsd || linux

package exqlite

import (
	"runtime"

	"github.com/ebitengine/purego"
)

func platformLibraryNames() []string {
	if runtime.GOOS == "darwin" {
		return []string{"libsqlite3.dylib", "/usr/lib/libsqlite3.dylib"}
	}
	return []string{"libsqlite3.so.0", "libsqlite3.so"}
}

func openLibrary(path string) (uintptr, error) {
	return purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
}
