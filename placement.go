package blockalloc

// splitBlock carves block down to size and threads a new free block from
// the remainder, when the remainder is large enough to be worth keeping
// (spec §4.5 step 4 and the split edge case in the same section). It is a
// no-op otherwise, leaving the extra bytes as internal padding on block.
func (a *Allocator) splitBlock(block *blockHeader, size uint64) {
	a.validateBlock(block, "split_block_before")

	originalSize := block.size
	remaining := originalSize - size - uint64(headerSize) - a.footerOverhead()

	guardOverhead := uint64(0)
	if a.cfg.MemoryGuards {
		guardOverhead = 2 * Alignment
	}
	if remaining < minBlockSize+guardOverhead {
		return
	}

	block.size = size
	a.setFooter(block)

	newOffset := a.offsetOf(block) + headerSize + uintptr(size) + uintptr(a.footerOverhead())
	newBlock := a.headerAt(newOffset)
	newBlock.sentinelStart = sentinelValue
	newBlock.size = remaining
	newBlock.free = true
	newBlock.prev = nil
	newBlock.next = nil
	newBlock.requestSize = 0
	newBlock.addressTag = nil
	newBlock.allocID = 0
	newBlock.sentinelEnd = sentinelValue
	a.setFooter(newBlock)

	a.addToFreeList(newBlock)
	if a.cfg.Stats {
		a.stats.FreeBlocks++
	}

	a.validateBlock(block, "split_block_after1")
	a.validateBlock(newBlock, "split_block_after2")
}
