package blockalloc

// Config selects which of the allocator's optional integrity and
// accounting features are compiled into a given Allocator. The source
// this package is modeled on gates the same set of behaviors behind
// preprocessor flags (THREAD_SAFE, DEBUG_LEVEL, ENABLE_STATS,
// MEMORY_GUARDS, BOUNDARY_TAGS, CACHE_LOCALITY, LEAK_DETECTION); Go has
// no conditional compilation suited to a library, so they become fields
// set once at construction and read on every hot path instead.
//
// The mutex that serializes every public entry point (THREAD_SAFE in the
// source) is not a Config field: it is always present.
type Config struct {
	// BoundaryTags enables block footers, which mirror the header's size
	// and free flag and make previous-physical-block lookup O(1). Without
	// it, free only coalesces forward.
	BoundaryTags bool

	// MemoryGuards brackets every live payload with ALIGNMENT guard bytes
	// on each side, checked at free time.
	MemoryGuards bool

	// Stats maintains the running byte/block/timing/histogram counters
	// and keeps the fragmentation summary current.
	Stats bool

	// LeakDetection records {ptr, size, alloc_id, origin} for every live
	// allocation in a side table.
	LeakDetection bool

	// CacheLocality inserts free blocks in the four smallest size classes
	// in address order rather than LIFO, trading insertion cost for
	// locality between consecutive small allocations.
	CacheLocality bool

	// DebugLevel gates validation depth: 0 is silent, 1 logs basic
	// lifecycle events, 2 additionally runs a full free/used-list
	// integrity sweep before every allocate and free.
	DebugLevel int
}

// DefaultConfig mirrors allocator.h: every optional feature starts enabled.
func DefaultConfig() Config {
	return Config{
		BoundaryTags:  true,
		MemoryGuards:  true,
		Stats:         true,
		LeakDetection: true,
		CacheLocality: true,
		DebugLevel:    1,
	}
}

// Option mutates an Allocator at construction time, applied in NewAllocator
// after DefaultConfig. This is the functional-options idiom standing in for
// the source's compile-time flags.
type Option func(*Allocator)

// WithBoundaryTags toggles footer-based prev-neighbor coalescing.
func WithBoundaryTags(enabled bool) Option {
	return func(a *Allocator) { a.cfg.BoundaryTags = enabled }
}

// WithMemoryGuards toggles guard-byte bracketing of live payloads.
func WithMemoryGuards(enabled bool) Option {
	return func(a *Allocator) { a.cfg.MemoryGuards = enabled }
}

// WithStats toggles the accounting subsystem.
func WithStats(enabled bool) Option {
	return func(a *Allocator) { a.cfg.Stats = enabled }
}

// WithLeakDetection toggles the allocation-record side table.
func WithLeakDetection(enabled bool) Option {
	return func(a *Allocator) { a.cfg.LeakDetection = enabled }
}

// WithCacheLocality toggles address-ordered insertion for the four
// smallest size classes.
func WithCacheLocality(enabled bool) Option {
	return func(a *Allocator) { a.cfg.CacheLocality = enabled }
}

// WithDebugLevel sets the integrity-check verbosity (0, 1, or 2).
func WithDebugLevel(level int) Option {
	return func(a *Allocator) { a.cfg.DebugLevel = level }
}

// WithLogger installs the diagnostic sink used for corruption, double-free,
// overrun and stats-drift reports. The default is a no-op logger, so an
// Allocator built with no options stays silent.
func WithLogger(logger *Logger) Option {
	return func(a *Allocator) {
		if logger != nil {
			a.log = logger
		}
	}
}
