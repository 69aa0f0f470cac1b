package export

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ------------------------------------------------------------
// Archive object naming.
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// e.g. 1714521600_2024-05-01-lambda-abc_000042.jsonl.gz
//
// Lexical order is time order, which keeps S3 listings of a partition
// in arrival order.
// ------------------------------------------------------------

var globalCounter uint64

// NextCounter returns a process-wide sequence number, wrapping at 1e6.
// Together with the timestamp and instance id it keeps names unique.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename returns a new archive object name for now.
func NewFilename(now time.Time, instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", now.Unix(), instanceID, NextCounter())
}

// BuildS3Key
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
//
// Hive-style UTC partitions so Athena / Glue can prune by day and hour.
func BuildS3Key(prefix string, now time.Time, filename string) string {
	now = now.UTC()
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, now.Format("2006-01-02"), now.Format("15"), filename)
}
