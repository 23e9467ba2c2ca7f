package pool

import (
	"sort"
	"sync"
)

// SlicePool manages pools of byte slices grouped into fixed size classes.
// Get returns a slice from the smallest class that fits; Put returns it to
// the class matching its capacity. Sizes outside every class are allocated
// and dropped normally.
type SlicePool struct {
	sizes []int
	pools map[int]*sync.Pool
}

// NewSlicePool creates a slice pool with the given size classes.
func NewSlicePool(sizes []int) *SlicePool {
	sp := &SlicePool{
		sizes: make([]int, len(sizes)),
		pools: make(map[int]*sync.Pool, len(sizes)),
	}
	copy(sp.sizes, sizes)
	sort.Ints(sp.sizes)

	for _, size := range sp.sizes {
		s := size // Capture for closure
		sp.pools[size] = &sync.Pool{
			New: func() interface{} {
				b := make([]byte, s)
				return &b
			},
		}
	}

	return sp
}

// Get retrieves a byte slice of the specified length.
func (sp *SlicePool) Get(size int) []byte {
	for _, poolSize := range sp.sizes {
		if poolSize >= size {
			slicePtr := sp.pools[poolSize].Get().(*[]byte)
			return (*slicePtr)[:size]
		}
	}

	// Larger than every class: allocate directly.
	return make([]byte, size)
}

// Put returns a byte slice to its size class.
func (sp *SlicePool) Put(slice []byte) {
	c := cap(slice)
	if pool, ok := sp.pools[c]; ok {
		full := slice[:c]
		pool.Put(&full)
	}
}

// ReadBuffers serves file-read buffers for detection samples, scan reads
// and tail ticks. The largest class matches the tail per-tick byte cap.
var ReadBuffers = NewSlicePool([]int{
	4096,            // stat-sized probes
	64 * 1024,       // detection samples
	1024 * 1024,     // mid-size reads
	4 * 1024 * 1024, // tail per-tick cap
})
