// Package blockalloc implements a general-purpose heap allocator over a
// single fixed-size backing region, with segregated free lists, optional
// boundary-tag coalescing, memory guards, leak tracking, and statistics.
package blockalloc

import (
	"sync"
	"time"
	"unsafe"
)

// addressTagMarker is the non-nil sentinel stamped into an allocated
// block's addressTag field. The source uses the literal pointer value
//0xDEADBEEF purely as a human-readable "this is allocated" marker never
// read back for validation; Go cannot materialize an arbitrary integer as
// a live pointer, so a package-level marker variable's address stands in
// for it (spec §9 notes this field may be repurposed).
var addressTagMarker byte

// Allocator is a general-purpose heap allocator over a single fixed-size,
// process-owned backing region. Every public method acquires mu first and
// releases it on every exit path; the mutex is never re-entered by an
// internal helper (spec §5's "big lock" model).
//
// The zero value is not ready for use — call NewAllocator, since the
// source's all-features-on defaults (DefaultConfig) cannot be represented
// by a Go zero value the way Config{} (all-off) would be.
type Allocator struct {
	mu  sync.Mutex
	cfg Config
	log *Logger

	region      []byte
	initialized bool

	freeLists [numClasses]*blockHeader
	usedList  *blockHeader

	nextAllocID uint32
	stats       Stats
	leaks       map[uintptr]*LeakRecord
}

// NewAllocator constructs an Allocator with every optional feature enabled
// by default (DefaultConfig), then applies opts. The backing region is not
// acquired until the first call to Initialize, or lazily on first use by
// Allocate/Free/Reallocate/ZeroAllocate, mirroring the source's
// "if (!initialized) initialize();" guard. SizeOf does not initialize: on
// an uninitialized allocator it returns 0.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		cfg:         DefaultConfig(),
		log:         NewNopLogger(),
		nextAllocID: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize acquires the backing region and installs one maximal free
// block spanning it. It is idempotent: a second call is a no-op. Failure
// to acquire the region is logged and leaves the allocator uninitialized;
// a later call retries.
func (a *Allocator) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initializeLocked()
}

func (a *Allocator) initializeLocked() error {
	if a.initialized {
		return nil
	}

	region, err := acquireRegion(HeapSize)
	if err != nil {
		a.logRegionFailure(err)
		return ErrRegionUnavailable
	}
	a.region = region

	first := a.headerAt(0)
	first.sentinelStart = sentinelValue
	first.size = HeapSize - uint64(headerSize) - a.footerOverhead()
	first.free = true
	first.prev = nil
	first.next = nil
	first.requestSize = 0
	first.addressTag = nil
	first.allocID = 0
	first.sentinelEnd = sentinelValue
	a.setFooter(first)

	for i := range a.freeLists {
		a.freeLists[i] = nil
	}
	a.usedList = nil
	a.addToFreeList(first)

	if a.cfg.Stats {
		a.stats = Stats{
			FreeBytes:         first.size,
			FreeBlocks:        1,
			LargestFreeBlock:  first.size,
			SmallestFreeBlock: first.size,
		}
	}
	if a.cfg.LeakDetection {
		a.leaks = make(map[uintptr]*LeakRecord)
	}

	a.initialized = true
	a.logLifecycle("heap initialized")
	return nil
}

// Cleanup drains the leak table, releases the backing region, and clears
// every list head. It is a no-op if the allocator was never initialized.
// After Cleanup, any previously returned slice is invalid and a further
// call to Allocate/Free/etc. re-initializes a fresh heap (spec §5).
func (a *Allocator) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil
	}

	a.leaks = nil
	err := releaseRegion(a.region)
	a.region = nil

	for i := range a.freeLists {
		a.freeLists[i] = nil
	}
	a.usedList = nil
	a.initialized = false
	a.logLifecycle("heap cleaned up")
	return err
}

func (a *Allocator) ensureInitializedLocked() error {
	if a.initialized {
		return nil
	}
	return a.initializeLocked()
}

// Allocate reserves requestedSize bytes and returns a zero-initialized
// slice of exactly that length, or (nil, nil) if requestedSize is 0 or no
// free block can satisfy the request. The call site is captured
// automatically for leak reporting.
func (a *Allocator) Allocate(requestedSize int) ([]byte, error) {
	return a.allocate(uint64(requestedSize), captureOrigin(2))
}

func (a *Allocator) allocate(requestedSize uint64, origin Origin) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	if requestedSize == 0 {
		return nil, nil
	}

	start := time.Now()
	if a.cfg.Stats {
		a.stats.TotalAllocations++
		a.stats.RequestedBytes += requestedSize
	}
	a.checkHeapIntegrity()

	guardOverhead := uint64(0)
	if a.cfg.MemoryGuards {
		guardOverhead = 2 * Alignment
	}
	aligned := alignUp(requestedSize + guardOverhead)

	block := a.findBestFit(aligned)
	if block == nil {
		if a.cfg.Stats {
			a.stats.FailedAllocations++
		}
		return nil, nil
	}

	// block must be unlinked from its free-list bucket using its
	// pre-split size: splitBlock shrinks block.size, and classOf(aligned)
	// can land in a different bucket than classOf(block.size) did,
	// particularly when findBestFit promoted to a larger class. Unlinking
	// after the split would search the wrong bucket and leave the class
	// head dangling on an allocated block.
	a.removeFromFreeList(block)

	if block.size >= aligned+minBlockSize {
		a.splitBlock(block, aligned)
	}

	block.free = false
	block.requestSize = requestedSize
	block.addressTag = unsafe.Pointer(&addressTagMarker)
	block.allocID = a.nextAllocID
	a.nextAllocID++

	a.addToUsedList(block)
	a.setFooter(block)

	if a.cfg.Stats {
		a.stats.AllocatedBytes += block.size
		a.stats.AllocatedBlocks++
		a.stats.FreeBytes -= block.size
		a.stats.FreeBlocks--
		a.stats.OverheadBytes += uint64(headerSize) + a.footerOverhead() + (aligned - requestedSize)
		a.stats.ClassUsage[classOf(aligned)] += aligned
		a.stats.TotalAllocTime += time.Since(start)
		a.updateFragmentationStats()
	}

	dataPtr := payload(block)
	if a.cfg.MemoryGuards {
		dataPtr = unsafe.Pointer(uintptr(dataPtr) + Alignment)
		addGuardBytes(dataPtr, requestedSize)
	}

	out := unsafe.Slice((*byte)(dataPtr), requestedSize)
	for i := range out {
		out[i] = 0
	}

	a.addLeakRecord(uintptr(dataPtr), requestedSize, block.allocID, origin)

	return out, nil
}

// headerFromUser recovers the block header for a user-facing slice,
// reversing the guard-byte shift applied at allocation time.
func (a *Allocator) headerFromUser(ptr unsafe.Pointer) *blockHeader {
	if a.cfg.MemoryGuards {
		ptr = unsafe.Pointer(uintptr(ptr) - Alignment)
	}
	return (*blockHeader)(unsafe.Pointer(uintptr(ptr) - uintptr(headerSize)))
}

// Free releases data, which must have been returned by Allocate,
// Reallocate or ZeroAllocate. The block is located through the slice's
// capacity, so a slice resliced to length 0 still releases its block; a
// slice with zero capacity (including nil) is a no-op.
func (a *Allocator) Free(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free(data)
}

func (a *Allocator) free(data []byte) {
	data = data[:cap(data)]
	if len(data) == 0 {
		return
	}
	if err := a.ensureInitializedLocked(); err != nil {
		return
	}

	start := time.Now()
	a.checkHeapIntegrity()

	userPtr := unsafe.Pointer(&data[0])
	block := a.headerFromUser(userPtr)
	a.validateBlock(block, "free")

	if block.free {
		a.logDoubleFree(block)
		return
	}

	if a.cfg.MemoryGuards {
		if !checkGuardBytes(userPtr, block.requestSize) {
			a.logOverrun(block)
		}
	}

	if a.cfg.Stats {
		a.stats.AllocatedBytes -= block.size
		a.stats.AllocatedBlocks--
		a.stats.FreeBytes += block.size
		a.stats.FreeBlocks++
		a.stats.TotalFrees++
		a.stats.ClassUsage[classOf(block.size)] -= block.size
	}

	block.free = true
	block.addressTag = nil
	a.removeFromUsedList(block)
	a.addToFreeList(block)
	a.setFooter(block)

	a.tryMergeWithNeighbors(block)

	a.removeLeakRecord(uintptr(userPtr))

	if a.cfg.Stats {
		a.stats.TotalFreeTime += time.Since(start)
		a.updateFragmentationStats()
	}
}

// SizeOf returns the originally requested size of the live allocation
// data belongs to, or 0 if data does not address a live block.
func (a *Allocator) SizeOf(data []byte) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	data = data[:cap(data)]
	if len(data) == 0 || !a.initialized {
		return 0
	}
	block := a.headerFromUser(unsafe.Pointer(&data[0]))
	if block.sentinelStart != sentinelValue || block.sentinelEnd != sentinelValue || block.free {
		return 0
	}
	return block.requestSize
}

// Reallocate changes the size of data's backing allocation. A nil data is
// equivalent to Allocate(newSize); newSize == 0 frees data and returns
// nil. Bytes [0, min(old, new)) are preserved.
func (a *Allocator) Reallocate(data []byte, newSize int) ([]byte, error) {
	origin := captureOrigin(2)
	if data == nil {
		return a.allocate(uint64(newSize), origin)
	}
	if newSize == 0 {
		a.Free(data)
		return nil, nil
	}
	data = data[:cap(data)]

	a.mu.Lock()

	if err := a.ensureInitializedLocked(); err != nil {
		a.mu.Unlock()
		return nil, err
	}

	userPtr := unsafe.Pointer(&data[0])
	block := a.headerFromUser(userPtr)
	if block.sentinelStart != sentinelValue || block.sentinelEnd != sentinelValue || block.free {
		a.mu.Unlock()
		return nil, nil
	}
	oldRequestSize := block.requestSize

	guardOverhead := uint64(0)
	if a.cfg.MemoryGuards {
		guardOverhead = 2 * Alignment
	}
	required := alignUp(uint64(newSize) + guardOverhead)

	if required <= block.size {
		if block.size >= required+minBlockSize {
			a.splitBlock(block, required)
			a.setFooter(block)
		}
		block.requestSize = uint64(newSize)
		if a.cfg.MemoryGuards {
			addGuardBytes(userPtr, uint64(newSize))
		}
		if a.cfg.LeakDetection {
			if rec, ok := a.leaks[uintptr(userPtr)]; ok {
				rec.Size = uint64(newSize)
				rec.Origin = origin
			}
		}
		a.mu.Unlock()
		return unsafe.Slice((*byte)(userPtr), newSize), nil
	}

	// Out-of-place growth. The mutex is released here, before re-entering
	// through allocate+free, exactly as the source does: every state read
	// above happened while still holding it, and the mutex is never
	// re-locked by an internal helper (spec §9).
	a.mu.Unlock()

	newData, err := a.allocate(uint64(newSize), origin)
	if err != nil || newData == nil {
		return nil, err
	}

	copyLen := oldRequestSize
	if uint64(newSize) < copyLen {
		copyLen = uint64(newSize)
	}
	copy(newData[:copyLen], data[:copyLen])

	a.Free(data)
	return newData, nil
}

// ZeroAllocate is the counting-allocation entry point: it allocates
// count*elementSize bytes, returning an overflow error if the product
// cannot be represented, and relies on Allocate's unconditional
// zero-fill to satisfy the zero-initialization requirement.
func (a *Allocator) ZeroAllocate(count, elementSize int) ([]byte, error) {
	if count > 0 && uint64(elementSize) > (^uint64(0))/uint64(count) {
		return nil, ErrSizeOverflow
	}
	return a.allocate(uint64(count)*uint64(elementSize), captureOrigin(2))
}

// Walk visits every physical block in the backing region in address
// order, free or used, stopping early if fn returns false. This is the
// read-only data an external heap-map or visualization reporter would
// need (spec.md names those reporters out of scope); Walk does not
// format or print anything.
func (a *Allocator) Walk(fn func(BlockInfo) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return
	}

	offset := uintptr(0)
	for a.inRegion(offset, headerSize) {
		block := a.headerAt(offset)
		if block.sentinelStart != sentinelValue {
			return
		}
		info := BlockInfo{Offset: offset, Size: block.size, Free: block.free, AllocID: block.allocID}
		if !fn(info) {
			return
		}
		offset += uintptr(a.span(block))
	}
}
