package ofp4sw

import (
	"math/rand"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

// LRUBufferPool keeps frames under random buffer ids. The oldest buffer is
// evicted when the pool is full.
type LRUBufferPool struct {
	lock  sync.Mutex
	cache *lru.Cache
	slabs sync.Pool
}

func NewLRUBufferPool(size int) (*LRUBufferPool, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "buffer pool")
	}
	return &LRUBufferPool{cache: cache}, nil
}

// Store keeps a copy of f and returns its buffer id.
func (self *LRUBufferPool) Store(f *Frame) (uint32, error) {
	self.lock.Lock()
	defer self.lock.Unlock()
	for i := 0; i < 32; i++ {
		bufferId := uint32(rand.Int31()) // never OFP_NO_BUFFER
		if !self.cache.Contains(bufferId) {
			self.cache.Add(bufferId, self.Duplicate(f))
			return bufferId, nil
		}
	}
	return 0, errors.New("buffer id allocation failed")
}

// Lookup takes the frame out of the pool. A buffer id can be used once.
func (self *LRUBufferPool) Lookup(bufferId uint32) (*Frame, bool) {
	self.lock.Lock()
	defer self.lock.Unlock()
	v, ok := self.cache.Get(bufferId)
	if !ok {
		return nil, false
	}
	self.cache.Remove(bufferId)
	return v.(*Frame), true
}

func (self *LRUBufferPool) Len() int {
	return self.cache.Len()
}

func (self *LRUBufferPool) Duplicate(f *Frame) *Frame {
	var buf []byte
	if p, ok := self.slabs.Get().(*[]byte); ok && cap(*p) >= len(f.data) {
		buf = (*p)[:len(f.data)]
	} else {
		buf = make([]byte, len(f.data))
	}
	copy(buf, f.data)
	return &Frame{data: buf, cls: f.cls}
}

// Release recycles the frame bytes. f must not be used afterwards.
func (self *LRUBufferPool) Release(f *Frame) {
	if f == nil || f.data == nil {
		return
	}
	buf := f.data[:0]
	self.slabs.Put(&buf)
	f.data = nil
	f.cls = Classification{}.reset()
}
