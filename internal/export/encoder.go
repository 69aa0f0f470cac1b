package export

import (
	"bytes"

	"batch-metrics/internal/pool"

	"github.com/klauspost/compress/gzip"
)

// EncodeJSONLGZ writes one record per line and gzips the result.
//
// The gzip writer and output buffer come from the pools; the returned
// slice is a copy owned by the caller, since handing out the pooled
// buffer would let the next batch overwrite it.
func EncodeJSONLGZ(records [][]byte) ([]byte, error) {
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBuffer(buf)

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)
	defer pool.GzipPool.Put(gz)

	for _, r := range records {
		if _, err := gz.Write(r); err != nil {
			_ = gz.Close()
			return nil, err
		}
		if _, err := gz.Write([]byte{'\n'}); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}

	// Close writes the gzip footer.
	if err := gz.Close(); err != nil {
		return nil, err
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}
