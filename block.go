package blockalloc

import "unsafe"

// Observable constants (spec §6).
const (
	// HeapSize is the fixed length of the backing region: 1 MiB.
	HeapSize = 1 << 20

	// Alignment is the global alignment boundary in bytes.
	Alignment = 16

	sentinelValue  uint32 = 0xCAFEBABE
	footerSentinel uint32 = 0xDEADBEEF
	guardValue     byte   = 0xFE
)

// Eight size-class upper bounds; class 7 catches everything above 2048.
var classBounds = [7]uint64{32, 64, 128, 256, 512, 1024, 2048}

const numClasses = 8

// classOf returns the smallest size class whose bound is >= s, or 7 if s
// exceeds every bound.
func classOf(s uint64) int {
	for i, bound := range classBounds {
		if s <= bound {
			return i
		}
	}
	return numClasses - 1
}

// alignUp rounds n up to the next multiple of Alignment.
func alignUp(n uint64) uint64 {
	const mask = uint64(Alignment - 1)
	return (n + mask) &^ mask
}

// blockHeader is the fixed-size prefix of every block tiling the backing
// region. Its layout mirrors the source's Block struct field for field;
// prev/next mean "free-list bucket link" while free, "used-list link"
// while allocated, per spec §3.
//
// Most reinterpretation of raw region bytes as typed structs lives in
// this file (headerAt, footerOf, prevPhysical, payload). Outside it,
// alloc.go's headerFromUser casts a user pointer back to its header, and
// splitBlock and Walk compute byte offsets that they resolve through
// headerAt.
type blockHeader struct {
	sentinelStart uint32
	_             [4]byte
	size          uint64
	free          bool
	_             [7]byte
	prev          *blockHeader
	next          *blockHeader
	requestSize   uint64
	addressTag    unsafe.Pointer
	allocID       uint32
	sentinelEnd   uint32
}

// blockFooter is the optional boundary tag written immediately after a
// block's payload when Config.BoundaryTags is set.
type blockFooter struct {
	size     uint64
	free     bool
	_        [3]byte
	sentinel uint32
}

var (
	headerSize = unsafe.Sizeof(blockHeader{})
	footerSize = unsafe.Sizeof(blockFooter{})
)

// minBlockSize is the smallest payload a split is willing to carve off:
// enough to hold another header plus at least one alignment unit of
// payload, mirroring MIN_BLOCK_SIZE = ALIGN(sizeof(Block) + 16).
var minBlockSize = alignUp(uint64(headerSize) + Alignment)

// footerOverhead is sizeof(footer) when boundary tags are enabled, 0
// otherwise — the repeated "+ (BOUNDARY_TAGS ? sizeof(BlockFooter) : 0)"
// term from the source, computed once per call site instead.
func (a *Allocator) footerOverhead() uint64 {
	if a.cfg.BoundaryTags {
		return uint64(footerSize)
	}
	return 0
}

// headerAt reinterprets the region byte at offset as a block header.
func (a *Allocator) headerAt(offset uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&a.region[offset]))
}

// offsetOf returns b's byte offset within the backing region.
func (a *Allocator) offsetOf(b *blockHeader) uintptr {
	return uintptr(unsafe.Pointer(b)) - uintptr(unsafe.Pointer(&a.region[0]))
}

// inRegion reports whether offset..offset+size lies within the backing
// region, the bounds check spec §9 requires on every traversal.
func (a *Allocator) inRegion(offset uintptr, size uintptr) bool {
	return offset < uintptr(len(a.region)) && offset+size <= uintptr(len(a.region))
}

// payload returns the address of b's payload, i.e. b+sizeof(header).
func payload(b *blockHeader) unsafe.Pointer {
	return unsafe.Pointer(uintptr(unsafe.Pointer(b)) + headerSize)
}

// span is the total physical footprint of a block: header + payload +
// optional footer.
func (a *Allocator) span(b *blockHeader) uint64 {
	return uint64(headerSize) + b.size + a.footerOverhead()
}

// nextPhysical returns the block immediately following b in the region,
// or nil if that would fall outside the region (there is no trailing
// block to speak of past the last one).
func (a *Allocator) nextPhysical(b *blockHeader) *blockHeader {
	offset := a.offsetOf(b) + uintptr(a.span(b))
	if !a.inRegion(offset, headerSize) {
		return nil
	}
	return a.headerAt(offset)
}

// footerOf returns b's footer, valid only when boundary tags are enabled.
func (a *Allocator) footerOf(b *blockHeader) *blockFooter {
	offset := a.offsetOf(b) + headerSize + uintptr(b.size)
	return (*blockFooter)(unsafe.Pointer(&a.region[offset]))
}

// setFooter writes b's footer to mirror its current size/free state, a
// no-op when boundary tags are disabled.
func (a *Allocator) setFooter(b *blockHeader) {
	if !a.cfg.BoundaryTags {
		return
	}
	f := a.footerOf(b)
	f.size = b.size
	f.free = b.free
	f.sentinel = footerSentinel
}

// prevPhysical locates the block immediately preceding b by walking its
// footer backward, per spec §4.2. It requires boundary tags and returns
// nil whenever the back-walk lands on anything that doesn't validate
// (region start, corrupted footer, corrupted neighbor sentinels).
func (a *Allocator) prevPhysical(b *blockHeader) *blockHeader {
	if !a.cfg.BoundaryTags {
		return nil
	}
	offset := a.offsetOf(b)
	if offset < uintptr(footerSize) {
		return nil
	}
	prevFooter := (*blockFooter)(unsafe.Pointer(&a.region[offset-uintptr(footerSize)]))
	if prevFooter.sentinel != footerSentinel {
		return nil
	}
	prevOffset := offset - uintptr(footerSize) - uintptr(prevFooter.size) - headerSize
	if prevOffset > offset { // underflow guard
		return nil
	}
	prev := a.headerAt(prevOffset)
	if prev.sentinelStart != sentinelValue || prev.sentinelEnd != sentinelValue {
		return nil
	}
	return prev
}

// addGuardBytes stamps Alignment guard bytes immediately before and after
// the payload region of length n at p with guardValue.
func addGuardBytes(p unsafe.Pointer, n uint64) {
	start := (*[1 << 30]byte)(unsafe.Pointer(uintptr(p) - Alignment))[:Alignment:Alignment]
	end := (*[1 << 30]byte)(unsafe.Pointer(uintptr(p) + uintptr(n)))[:Alignment:Alignment]
	for i := range start {
		start[i] = guardValue
	}
	for i := range end {
		end[i] = guardValue
	}
}

// checkGuardBytes verifies both guard bands around the n-byte payload at
// p still read guardValue.
func checkGuardBytes(p unsafe.Pointer, n uint64) bool {
	start := (*[1 << 30]byte)(unsafe.Pointer(uintptr(p) - Alignment))[:Alignment:Alignment]
	end := (*[1 << 30]byte)(unsafe.Pointer(uintptr(p) + uintptr(n)))[:Alignment:Alignment]
	for _, c := range start {
		if c != guardValue {
			return false
		}
	}
	for _, c := range end {
		if c != guardValue {
			return false
		}
	}
	return true
}

// BlockInfo is a read-only snapshot of one physical block, surfaced by
// Walk for an external reporter to render (spec.md names heap-map dump
// and visualization as out-of-scope collaborators; this is the data they
// would consume, not a reporter itself).
type BlockInfo struct {
	Offset  uintptr
	Size    uint64
	Free    bool
	AllocID uint32
}
