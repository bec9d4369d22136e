package blockalloc

// addToFreeList threads block into the bucket for its current size,
// LIFO by default. When CacheLocality is enabled and the bucket is one
// of the four smallest, the block is instead inserted in address order
// within that bucket, per spec §4.3. Any pre-existing link fields are
// ignored and reset.
func (a *Allocator) addToFreeList(block *blockHeader) {
	if block == nil {
		return
	}
	block.free = true
	class := classOf(block.size)
	block.prev = nil
	block.next = a.freeLists[class]
	if a.freeLists[class] != nil {
		a.freeLists[class].prev = block
	}
	a.freeLists[class] = block

	if a.cfg.CacheLocality && class < 4 {
		a.reorderByAddress(class, block)
	}
}

// reorderByAddress relocates block, just inserted at the head of
// freeLists[class], to keep the bucket sorted by ascending region offset.
func (a *Allocator) reorderByAddress(class int, block *blockHeader) {
	current := a.freeLists[class]
	var prev *blockHeader
	for current != nil && current.next != nil && a.offsetOf(current.next) < a.offsetOf(block) {
		prev = current
		current = current.next
	}
	if prev == nil {
		return
	}

	a.freeLists[class] = a.freeLists[class].next
	if a.freeLists[class] != nil {
		a.freeLists[class].prev = nil
	}
	block.next = current.next
	if block.next != nil {
		block.next.prev = block
	}
	current.next = block
	block.prev = current
}

// removeFromFreeList unthreads block from the bucket determined by its
// current size, updating the class head if block was it.
func (a *Allocator) removeFromFreeList(block *blockHeader) {
	if block == nil {
		return
	}
	class := classOf(block.size)
	if block.prev != nil {
		block.prev.next = block.next
	}
	if block.next != nil {
		block.next.prev = block.prev
	}
	if a.freeLists[class] == block {
		a.freeLists[class] = block.next
	}
	block.prev = nil
	block.next = nil
}

// findBestFit implements the placement engine's search (spec §4.5 step 3):
// best fit within classOf(size), tracking the smallest non-negative
// difference and short-circuiting on an exact match, then first-fit
// promotion to the first non-empty larger class if the home class has no
// candidate.
func (a *Allocator) findBestFit(size uint64) *blockHeader {
	class := classOf(size)
	var best *blockHeader
	var smallestDiff uint64 = ^uint64(0)

	for current := a.freeLists[class]; current != nil; current = current.next {
		a.validateBlock(current, "find_best_fit")
		if current.free && current.size >= size {
			diff := current.size - size
			if diff == 0 {
				return current
			}
			if diff < smallestDiff {
				smallestDiff = diff
				best = current
			}
		}
	}
	if best != nil {
		return best
	}

	for c := class + 1; c < numClasses; c++ {
		if a.freeLists[c] != nil {
			return a.freeLists[c]
		}
	}
	return nil
}
