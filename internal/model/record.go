// internal/model/record.go
package model

// DefaultNamespace is the CloudWatch namespace every record is published under.
const DefaultNamespace = "AWSBatchMetrics"

// Unit is a CloudWatch standard unit name.
type Unit string

const (
	UnitMilliseconds Unit = "Milliseconds"
	UnitPercent      Unit = "Percent"
	UnitCount        Unit = "Count"
)

// Metric is one named value inside a record.
type Metric struct {
	Name  string
	Value float64
	Unit  Unit
}

// MetricRecord
// ------------------------------------------------------------
// One submission to the metrics sink.
//
//   - Dimensions: each entry is published as its own single-key dimension set
//   - Properties: descriptive, non-aggregated fields
//   - Timestamp: epoch milliseconds taken from the event, never wall-clock
//
// Records are built, emitted once and dropped.
type MetricRecord struct {
	Namespace  string
	Dimensions []Dimension
	Properties map[string]any
	Metrics    []Metric
	Timestamp  int64
}

// Record is one raw delivery record of an inbound batch.
type Record struct {
	ID   string // transport message id
	Body []byte
}
