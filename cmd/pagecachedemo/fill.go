package main

import "unsafe"

// fillPage writes n copies of b starting at addr. It exists only to give
// the write command something concrete to do to a pinned page's buffer.
func fillPage(addr uintptr, n int, b byte) {
	dst := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	for i := range dst {
		dst[i] = b
	}
}
