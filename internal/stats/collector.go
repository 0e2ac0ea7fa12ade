package stats

import "sync/atomic"

// Collector accumulates per-partition counters for the lifetime of an
// open partition using plain atomics, no locking, cheap enough to
// update on every Put/RemoveValue without contending with list locks.
type Collector struct {
	numKeys          atomic.Uint64
	numValuesAdded   atomic.Uint64
	numValuesRemoved atomic.Uint64

	keySizeMin atomic.Uint64
	keySizeMax atomic.Uint64
	keySizeSum atomic.Uint64

	listSizeMin atomic.Uint64
	listSizeMax atomic.Uint64
	listSizeSum atomic.Uint64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.keySizeMin.Store(^uint64(0))
	c.listSizeMin.Store(^uint64(0))
	return c
}

// TrackNewKey records the insertion of a brand new key of the given
// size into the partition's key table.
func (c *Collector) TrackNewKey(keySize int) {
	c.numKeys.Add(1)
	observeMin(&c.keySizeMin, uint64(keySize))
	observeMax(&c.keySizeMax, uint64(keySize))
	c.keySizeSum.Add(uint64(keySize))
}

// TrackValuesAdded records n values appended across any keys.
func (c *Collector) TrackValuesAdded(n uint64) { c.numValuesAdded.Add(n) }

// TrackValuesRemoved records n values tombstoned across any keys.
func (c *Collector) TrackValuesRemoved(n uint64) { c.numValuesRemoved.Add(n) }

// ObserveListSize folds a single list's current valid-value count into
// the running min/max/sum, called as each list is visited at Close.
func (c *Collector) ObserveListSize(size uint64) {
	observeMin(&c.listSizeMin, size)
	observeMax(&c.listSizeMax, size)
	c.listSizeSum.Add(size)
}

func observeMin(v *atomic.Uint64, x uint64) {
	for {
		cur := v.Load()
		if x >= cur {
			return
		}
		if v.CompareAndSwap(cur, x) {
			return
		}
	}
}

func observeMax(v *atomic.Uint64, x uint64) {
	for {
		cur := v.Load()
		if x <= cur {
			return
		}
		if v.CompareAndSwap(cur, x) {
			return
		}
	}
}

// Snapshot materializes a Stats record from the collector's current
// values plus the block store/file facts the caller supplies.
func (c *Collector) Snapshot(blockSize uint64, numBlocks uint64) Stats {
	numKeys := c.numKeys.Load()

	keyMin, keyMax, keyAvg := rangeAvg(c.keySizeMin.Load(), c.keySizeMax.Load(), c.keySizeSum.Load(), numKeys)
	listMin, listMax, listAvg := rangeAvg(c.listSizeMin.Load(), c.listSizeMax.Load(), c.listSizeSum.Load(), numKeys)

	return Stats{
		BlockSize:        blockSize,
		NumBlocks:        numBlocks,
		NumKeys:          numKeys,
		NumValuesAdded:   c.numValuesAdded.Load(),
		NumValuesRemoved: c.numValuesRemoved.Load(),
		NumValuesUnowned: 0,
		KeySizeMin:       keyMin,
		KeySizeMax:       keyMax,
		KeySizeAvg:       keyAvg,
		ListSizeMin:      listMin,
		ListSizeMax:      listMax,
		ListSizeAvg:      listAvg,
	}
}

// Restore seeds a freshly opened Collector from a Stats record read
// back from disk, so counters keep accumulating across close/reopen
// instead of resetting to zero.
func (c *Collector) Restore(s Stats) {
	c.numKeys.Store(s.NumKeys)
	c.numValuesAdded.Store(s.NumValuesAdded)
	c.numValuesRemoved.Store(s.NumValuesRemoved)
	c.keySizeMin.Store(s.KeySizeMin)
	c.keySizeMax.Store(s.KeySizeMax)
	c.keySizeSum.Store(s.KeySizeAvg * s.NumKeys)
	c.listSizeMin.Store(s.ListSizeMin)
	c.listSizeMax.Store(s.ListSizeMax)
	c.listSizeSum.Store(s.ListSizeAvg * s.NumKeys)
}

func rangeAvg(min, max, sum, n uint64) (uint64, uint64, uint64) {
	if n == 0 {
		return 0, 0, 0
	}
	if min == ^uint64(0) {
		min = 0
	}
	return min, max, sum / n
}
