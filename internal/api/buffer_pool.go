package api

import (
	"bytes"
	"sync"
)

// bufferPool reuses byte buffers for request bodies. With concurrent section
// workers hitting the API, per-request allocations add up.
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool. Oversized buffers are dropped so
// one huge request body does not pin memory for the rest of the run.
func putBuffer(buf *bytes.Buffer) {
	const maxBufferSize = 16 * 1024
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}
