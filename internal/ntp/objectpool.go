package ntp

import "sync"

// readBufferSize leaves room for extension fields so oversized replies are
// read whole instead of being truncated mid-packet
const readBufferSize = 512

// readBufferPool reduces allocations for per-exchange receive buffers
var readBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, readBufferSize)
		return &b
	},
}

// GetReadBuffer gets a receive buffer from the pool
func GetReadBuffer() *[]byte {
	b := readBufferPool.Get().(*[]byte)
	*b = (*b)[:readBufferSize]
	return b
}

// PutReadBuffer returns a receive buffer to the pool
func PutReadBuffer(b *[]byte) {
	if b == nil {
		return
	}
	clear(*b)
	readBufferPool.Put(b)
}
