//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package memalloc

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func init() {
	pageSize = unix.Getpagesize()
}

// mapAnonymous creates a private, anonymous mapping of size bytes, not
// backed by any file.
func mapAnonymous(size uintptr) (uintptr, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, err
	}
	return uintptr(unsafe.Pointer(&data[0])), nil
}

func unmap(addr, size uintptr) error {
	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return unix.Munmap(data)
}
