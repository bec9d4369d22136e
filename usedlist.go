package blockalloc

// addToUsedList threads block onto the single used-list, LIFO, per spec
// §4.4. The used-list exists for traversal and leak cross-reference; it
// is never searched during allocation.
func (a *Allocator) addToUsedList(block *blockHeader) {
	if block == nil {
		return
	}
	block.free = false
	block.prev = nil
	block.next = a.usedList
	if a.usedList != nil {
		a.usedList.prev = block
	}
	a.usedList = block
}

// removeFromUsedList unthreads block from the used-list.
func (a *Allocator) removeFromUsedList(block *blockHeader) {
	if block == nil {
		return
	}
	if block.prev != nil {
		block.prev.next = block.next
	}
	if block.next != nil {
		block.next.prev = block.prev
	}
	if a.usedList == block {
		a.usedList = block.next
	}
	block.prev = nil
	block.next = nil
}
