// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.
//
// Modifications (c) 2017 The Memory Authors.

//go:build windows

package blockalloc

import (
	"errors"
	"os"
	"reflect"
	"syscall"
	"unsafe"
)

// handleMap lets releaseRegion recover the mapping handle CreateFileMapping
// returned for a given base address, since Go cannot thread the handle
// through the returned []byte.
var handleMap = map[uintptr]syscall.Handle{}

// acquireRegion obtains a zero-filled anonymous mapping of size bytes via
// CreateFileMapping/MapViewOfFile, golang.org/x/sys/unix has no Windows
// analogue for anonymous mappings, so the teacher's original two-step
// Windows path is kept as-is.
func acquireRegion(size int) ([]byte, error) {
	flProtect := uint32(syscall.PAGE_READWRITE)
	dwDesiredAccess := uint32(syscall.FILE_MAP_WRITE)

	maxSizeHigh := uint32(int64(size) >> 32)
	maxSizeLow := uint32(int64(size) & 0xFFFFFFFF)
	h, errno := syscall.CreateFileMapping(syscall.Handle(^uintptr(0)), nil, flProtect, maxSizeHigh, maxSizeLow, nil)
	if h == 0 {
		return nil, os.NewSyscallError("CreateFileMapping", errno)
	}

	addr, errno := syscall.MapViewOfFile(h, dwDesiredAccess, 0, 0, uintptr(size))
	if addr == 0 {
		return nil, os.NewSyscallError("MapViewOfFile", errno)
	}

	handleMap[addr] = h
	var b []byte
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&b))
	sh.Data = addr
	sh.Len = size
	sh.Cap = size
	return b, nil
}

// releaseRegion unmaps a region obtained from acquireRegion.
func releaseRegion(region []byte) error {
	if len(region) == 0 {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&region[0]))
	if err := syscall.UnmapViewOfFile(addr); err != nil {
		return err
	}

	handle, ok := handleMap[addr]
	if !ok {
		return errors.New("blockalloc: unknown region base address")
	}
	delete(handleMap, addr)

	return os.NewSyscallError("CloseHandle", syscall.CloseHandle(handle))
}
