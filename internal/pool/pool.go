package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// ---------------------------------------------------------------
// Reusable buffers for the two allocation-heavy paths:
//   - reading POST /batch bodies
//   - gzip+JSONL encoding of archive objects
// ---------------------------------------------------------------

var (
	// BodyPool holds request body buffers. 16KB covers a full SQS batch
	// of typical lifecycle events.
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 16*1024))
		},
	}

	// BufferPool holds gzip output buffers.
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool holds gzip writers; BestSpeed since archive objects are
	// small and written on the request path.
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap is the largest buffer returned to BufferPool.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// GetBody returns an empty body buffer.
func GetBody() *bytes.Buffer {
	buf := BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBody returns buf to BodyPool unless it grew beyond maxCap.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutBuffer returns buf to BufferPool unless it grew beyond MaxBufferCap.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
