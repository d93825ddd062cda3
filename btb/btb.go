// Package btb implements the branch target buffer and tournament branch
// predictor described in spec §4.5: a 64-entry direct-mapped BTB tagged
// by full PC, combined with a bimodal/gshare tournament predictor that
// decides which sub-predictor to trust per branch PC.
package btb

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// DefaultEntries is the default BTB size (spec §4.5: 64 entries).
const DefaultEntries = 64

// Stats holds BTB hit/miss counters.
type Stats struct {
	Hits   uint64
	Misses uint64
}

// HitRate returns the fraction of predict() calls that found a tagged
// entry.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// BTB is a direct-mapped branch target buffer. It reuses Akita's
// cache-directory machinery (tag/valid bookkeeping, LRU victim finder)
// configured with associativity 1 — exactly "direct-mapped" — and a
// one-word block, the same way the teacher's cache package wraps a
// directory over a flat data store (see timing/cache/cache.go in the
// reference pipeline this package is modeled on).
type BTB struct {
	directory *akitacache.DirectoryImpl
	targets   []uint32
	entries   int
	stats     Stats
}

// New creates a BTB with the given number of entries (must be a power of
// two; DefaultEntries if n <= 0).
func New(n int) *BTB {
	if n <= 0 {
		n = DefaultEntries
	}
	return &BTB{
		directory: akitacache.NewDirectory(n, 1, 4, akitacache.NewLRUVictimFinder()),
		targets:   make([]uint32, n),
		entries:   n,
	}
}

func (b *BTB) blockIndex(block *akitacache.Block) int {
	return block.SetID*1 + block.WayID
}

// Predict looks up pc combinationally against the pre-update BTB state
// (spec §9: "predict uses the PRE-update state"). It reports whether the
// full-PC tag matched and, if so, the predicted target.
func (b *BTB) Predict(pc uint32) (hit bool, target uint32) {
	block := b.directory.Lookup(0, uint64(pc))
	if block == nil || !block.IsValid {
		b.stats.Misses++
		return false, 0
	}

	b.stats.Hits++
	return true, b.targets[b.blockIndex(block)]
}

// Update records a taken/resolved branch's target, replacing whatever
// entry currently occupies that set wholesale (spec §4.5: "entries are
// never explicitly invalidated; overwrites replace the entry wholesale").
// Only called for taken branches (spec §4.6 step 5: "Update BTB only when
// taken").
func (b *BTB) Update(pc uint32, target uint32) {
	victim := b.directory.FindVictim(uint64(pc))
	if victim == nil {
		return
	}
	victim.Tag = uint64(pc)
	victim.IsValid = true
	b.directory.Visit(victim)
	b.targets[b.blockIndex(victim)] = target
}

// Stats returns BTB hit/miss statistics.
func (b *BTB) Stats() Stats {
	return b.stats
}

// Reset clears all entries and statistics.
func (b *BTB) Reset() {
	b.directory.Reset()
	for i := range b.targets {
		b.targets[i] = 0
	}
	b.stats = Stats{}
}
