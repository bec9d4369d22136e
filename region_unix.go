// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !windows

package blockalloc

import "golang.org/x/sys/unix"

// acquireRegion obtains a zero-filled, anonymous mapping of size bytes
// from the host OS — the process shim spec.md names as an external
// collaborator to the region bootstrap. Adapted from the teacher's raw
// syscall.Mmap to golang.org/x/sys/unix, the mmap surface the rest of the
// retrieved pack (alexlewtschuk/balloc, orizon-lang/orizon) uses.
func acquireRegion(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
}

// releaseRegion returns a region obtained from acquireRegion to the host.
func releaseRegion(region []byte) error {
	return unix.Munmap(region)
}
