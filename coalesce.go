package blockalloc

// tryMergeWithNeighbors merges block with its next physical neighbor
// whenever that neighbor is free, and — when boundary tags are enabled —
// with its previous physical neighbor too (spec §4.6 step 9). Called
// from free only; allocate-time splits do not attempt coalescing on the
// remainder, relying on later frees, matching the source.
func (a *Allocator) tryMergeWithNeighbors(block *blockHeader) bool {
	merged := false

	if next := a.nextPhysical(block); next != nil {
		a.validateBlock(next, "merge_check_next")
		if next.free {
			a.removeFromFreeList(next)
			// Unlink block from its current bucket before growing it:
			// classOf(size) may change, and removeFromFreeList locates
			// the bucket from the block's *current* size, so this must
			// happen before the size is mutated (spec §9's re-index
			// wrinkle).
			a.removeFromFreeList(block)
			block.size += uint64(headerSize) + next.size + a.footerOverhead()
			a.setFooter(block)
			if a.cfg.Stats {
				a.stats.FreeBlocks--
			}
			merged = true
			a.addToFreeList(block)
		}
	}

	if a.cfg.BoundaryTags {
		if prev := a.prevPhysical(block); prev != nil && prev.free {
			a.removeFromFreeList(block)
			// prev must also be unlinked from its current bucket before
			// growing it, same as the next-neighbor case above: its size
			// class can change, and removeFromFreeList locates the
			// bucket from the size at call time.
			a.removeFromFreeList(prev)
			prev.size += uint64(headerSize) + block.size + uint64(footerSize)
			a.setFooter(prev)
			if a.cfg.Stats {
				a.stats.FreeBlocks--
			}
			merged = true
			a.addToFreeList(prev)
		}
	}

	return merged
}
