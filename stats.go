package blockalloc

import "time"

// Stats is a snapshot of the allocator's operational counters, populated
// only when Config.Stats is enabled (spec §4.8). The source's equivalent
// struct uses size_t/clock_t; this uses wide unsigned counters throughout
// so the accumulators in AllocatedBytes/ClassUsage/etc. cannot silently
// wrap within this allocator's 1 MiB domain, resolving the overflow
// concern spec.md §9 leaves open without adding saturating-arithmetic
// complexity nothing here needs.
type Stats struct {
	AllocatedBytes    uint64
	FreeBytes         uint64
	RequestedBytes    uint64
	OverheadBytes     uint64
	AllocatedBlocks   uint64
	FreeBlocks        uint64
	TotalAllocations  uint64
	TotalFrees        uint64
	FailedAllocations uint64
	FragmentationCount uint64
	LargestFreeBlock  uint64
	SmallestFreeBlock uint64
	TotalAllocTime    time.Duration
	TotalFreeTime     time.Duration
	ClassUsage        [numClasses]uint64
}

// FragmentationIndex computes 1 - largest/free when there is more than
// one free block, else 0, per spec §4.8's derived metric.
func (s Stats) FragmentationIndex() float64 {
	if s.FreeBlocks <= 1 || s.FreeBytes == 0 {
		return 0
	}
	return 1 - float64(s.LargestFreeBlock)/float64(s.FreeBytes)
}

// updateFragmentationStats recomputes the fragmentation summary by
// walking every free-list bucket, per spec §4.8 ("fully recomputed for
// fragmentation metrics after each allocate/free").
func (a *Allocator) updateFragmentationStats() {
	if !a.cfg.Stats {
		return
	}
	var count, largest uint64
	smallest := ^uint64(0)
	for class := 0; class < numClasses; class++ {
		for current := a.freeLists[class]; current != nil; current = current.next {
			count++
			if current.size > largest {
				largest = current.size
			}
			if current.size < smallest {
				smallest = current.size
			}
		}
	}
	if count == 0 {
		smallest = 0
	}
	a.stats.FragmentationCount = count
	a.stats.LargestFreeBlock = largest
	a.stats.SmallestFreeBlock = smallest
}

// Stats returns a snapshot of the allocator's accounting counters. The
// zero Stats is returned when Config.Stats is disabled.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// FragmentationIndex returns the allocator's current fragmentation
// summary under the mutex.
func (a *Allocator) FragmentationIndex() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats.FragmentationIndex()
}
