//go:build windows

package swapfile

import (
	"os"
	"reflect"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsMappings tracks the CreateFileMapping handle backing each data
// slice, since Go's plain []byte returned from MapViewOfFile has nowhere
// else to carry it.
var windowsMappings = map[uintptr]windows.Handle{}

func mapFile(f *os.File, size int64) ([]byte, error) {
	mapHandle, err := windows.CreateFileMapping(
		windows.Handle(f.Fd()), nil, windows.PAGE_READWRITE,
		uint32(size>>32), uint32(size&0xFFFFFFFF), nil)
	if err != nil {
		return nil, err
	}

	addr, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapHandle)
		return nil, err
	}

	var data []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Data = addr
	header.Len = int(size)
	header.Cap = int(size)

	windowsMappings[addr] = mapHandle
	return data, nil
}

func unmapFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&data[0]))
	handle, ok := windowsMappings[addr]
	if ok {
		delete(windowsMappings, addr)
	}
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return err
	}
	if ok {
		return windows.CloseHandle(handle)
	}
	return nil
}

func syncFile(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return windows.FlushViewOfFile(uintptr(unsafe.Pointer(&data[0])), uintptr(len(data)))
}
