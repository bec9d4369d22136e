package blockalloc

import "go.uber.org/zap"

// Logger is the diagnostic sink every mutating path reports through. The
// source writes directly to stderr with fprintf; this package instead
// takes an injected *zap.Logger so diagnostics are structured and a test
// can capture them deterministically instead of scraping stderr text.
type Logger = zap.Logger

// NewNopLogger returns a logger that discards everything, matching the
// silence of a zero-value Allocator in the source (no DEBUG_LEVEL output
// until a real logger is installed via WithLogger).
func NewNopLogger() *Logger { return zap.NewNop() }

func (a *Allocator) logCorruption(location string, block *blockHeader, reason string) {
	a.log.Error("heap corruption",
		zap.String("location", location),
		zap.String("reason", reason),
		zap.Uintptr("offset", a.offsetOf(block)),
	)
}

func (a *Allocator) logDoubleFree(block *blockHeader) {
	a.log.Warn("double free detected",
		zap.Uint32("alloc_id", block.allocID),
		zap.Uintptr("offset", a.offsetOf(block)),
	)
}

func (a *Allocator) logOverrun(block *blockHeader) {
	a.log.Warn("buffer overrun detected",
		zap.Uint32("alloc_id", block.allocID),
		zap.Uintptr("offset", a.offsetOf(block)),
	)
}

func (a *Allocator) logStatsDrift(reason string) {
	a.log.Warn("heap stats drift", zap.String("reason", reason))
}

func (a *Allocator) logLifecycle(msg string) {
	if a.cfg.DebugLevel > 0 {
		a.log.Info(msg, zap.Int("heap_size", HeapSize))
	}
}

func (a *Allocator) logRegionFailure(err error) {
	a.log.Error("failed to acquire backing region", zap.Int("heap_size", HeapSize), zap.Error(err))
}
