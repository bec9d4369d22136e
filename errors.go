package blockalloc

import "errors"

// ErrRegionUnavailable is returned by Initialize when the backing region
// could not be acquired from the host OS (the source's "Failed to
// initialize heap of size %d" stderr line, a condition Initialize leaves
// as initialized=false and every subsequent call degrades null/no-op).
var ErrRegionUnavailable = errors.New("blockalloc: failed to acquire backing region")

// ErrSizeOverflow is returned by ZeroAllocate when count*elementSize would
// overflow (the source's "count > 0 && size > SIZE_MAX/count" guard).
var ErrSizeOverflow = errors.New("blockalloc: element count * size overflows")
