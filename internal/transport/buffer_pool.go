package transport

import "sync"

// receiveBufferSize holds the largest UDP datagram.
const receiveBufferSize = 65536

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, receiveBufferSize)
		return &b
	},
}

// GetBuffer returns a receive buffer from the pool. The caller must return it
// with PutBuffer and must not retain slices of it afterwards.
func GetBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(b *[]byte) {
	if b == nil || cap(*b) < receiveBufferSize {
		return
	}
	*b = (*b)[:receiveBufferSize]
	bufferPool.Put(b)
}
