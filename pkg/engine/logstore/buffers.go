package logstore

import "sync"

// bufferPool recycles the read buffers that back pinned slices. A buffer
// is only returned to the pool when its slice is released, so pooled memory
// is never visible through a live slice.
type bufferPool struct {
	pool    sync.Pool
	maxSize int
}

func newBufferPool(maxSize int) *bufferPool {
	if maxSize <= 0 {
		maxSize = defaultBufferSize
	}
	return &bufferPool{maxSize: maxSize}
}

// get returns a buffer of length n.
func (p *bufferPool) get(n int) *[]byte {
	if n <= p.maxSize {
		if bp, ok := p.pool.Get().(*[]byte); ok && cap(*bp) >= n {
			*bp = (*bp)[:n]
			return bp
		} else if ok {
			p.pool.Put(bp)
		}
	}
	buf := make([]byte, n)
	return &buf
}

func (p *bufferPool) put(bp *[]byte) {
	if cap(*bp) > p.maxSize {
		return
	}
	*bp = (*bp)[:0]
	p.pool.Put(bp)
}

// leasedBuffer is the native buffer behind a logstore slice. value aliases
// the pooled buffer.
type leasedBuffer struct {
	buf   *[]byte
	value []byte
	pool  *bufferPool
}

func (b *leasedBuffer) Value() []byte {
	return b.value
}

func (b *leasedBuffer) Release() error {
	b.pool.put(b.buf)
	return nil
}
