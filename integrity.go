package blockalloc

// validateBlock reports (non-fatally) whether block lies outside the
// region, has a corrupted sentinel or footer, or carries an impossible
// size. It never halts the caller, per spec §7/§8.
func (a *Allocator) validateBlock(block *blockHeader, location string) {
	if block == nil {
		return
	}
	if !a.inRegion(a.offsetOf(block), headerSize) {
		a.logCorruption(location, block, "block outside region bounds")
		return
	}
	if block.sentinelStart != sentinelValue {
		a.logCorruption(location, block, "start sentinel corrupted")
	}
	if block.sentinelEnd != sentinelValue {
		a.logCorruption(location, block, "end sentinel corrupted")
	}
	if a.cfg.BoundaryTags {
		if footer := a.footerOf(block); footer.sentinel != footerSentinel {
			a.logCorruption(location, block, "footer sentinel corrupted")
		}
	}
	if block.size > HeapSize {
		a.logCorruption(location, block, "block size exceeds heap size")
	}
}

// checkHeapIntegrity walks every free-list bucket and the used-list,
// cross-checking tallied counts against the stats counters. Active only
// at DebugLevel >= 2, per spec §4.8.
func (a *Allocator) checkHeapIntegrity() {
	if a.cfg.DebugLevel < 2 {
		return
	}

	var freeCount, usedCount uint64
	for class := 0; class < numClasses; class++ {
		for current := a.freeLists[class]; current != nil; current = current.next {
			a.validateBlock(current, "heap_check_free")
			if !current.free {
				a.logStatsDrift("free list contains a block marked used")
			}
			freeCount++
		}
	}

	for current := a.usedList; current != nil; current = current.next {
		a.validateBlock(current, "heap_check_used")
		if current.free {
			a.logStatsDrift("used list contains a block marked free")
		}
		usedCount++
	}

	if a.cfg.Stats && (a.stats.FreeBlocks != freeCount || a.stats.AllocatedBlocks != usedCount) {
		a.logStatsDrift("list counts diverge from stats counters")
	}
}
