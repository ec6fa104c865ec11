//go:build windows

package exqlite

import "golang.org/x/sys/windows"

func platformLibraryNames() []string {
	return []string{"sqlite3.dll", "winsqlite3.dll"}
}

func openLibrary(path string) (uintptr, error) {
	handle, err := windows.LoadLibrary(path)
	return uintptr(handle), err
}
