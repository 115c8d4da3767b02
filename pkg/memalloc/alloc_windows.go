//go:build windows

package memalloc

import (
	"golang.org/x/sys/windows"
)

func init() {
	var info windows.SystemInfo
	windows.GetSystemInfo(&info)
	if info.PageSize != 0 {
		pageSize = int(info.PageSize)
	}
}

// mapAnonymous reserves and commits size bytes of anonymous, read-write
// memory via VirtualAlloc.
func mapAnonymous(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return 0, err
	}
	return addr, nil
}

func unmap(addr, size uintptr) error {
	return windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
}
