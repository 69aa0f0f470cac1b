// internal/model/event.go
package model

// EventKind
// ------------------------------------------------------------
// Lifecycle event shapes the pipeline knows how to turn into metrics.
type EventKind string

const (
	KindJobStateChange       EventKind = "JobStateChange"
	KindInstanceRegistration EventKind = "InstanceRegistration"
	KindTaskPlacement        EventKind = "TaskPlacement"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindJobStateChange, KindInstanceRegistration, KindTaskPlacement:
		return true
	}
	return false
}

// Well known dimension / property keys.
const (
	KeyAvailabilityZone = "AvailabilityZone"
	KeyECSCluster       = "ECSCluster"
	KeyInstanceType     = "InstanceType"
	KeyJobQueue         = "JobQueue"
	KeyJobDefinition    = "JobDefinition"
	KeyInstanceID       = "InstanceId"
)

// DimensionOrder is the bounded set of dimension keys, in emission order.
// Keys outside this set are emitted after these, sorted by name.
var DimensionOrder = []string{
	KeyAvailabilityZone,
	KeyECSCluster,
	KeyInstanceType,
	KeyJobQueue,
	KeyJobDefinition,
	KeyInstanceID,
}

// Timestamps
// ------------------------------------------------------------
// Job lifecycle epochs in epoch milliseconds. A nil field means the
// producer did not send it, which is different from a zero epoch.
type Timestamps struct {
	CreatedAt *int64 `json:"createdAt,omitempty"`
	StartedAt *int64 `json:"startedAt,omitempty"`
	StoppedAt *int64 `json:"stoppedAt,omitempty"`
}

// Empty reports whether none of the epochs are set.
func (t *Timestamps) Empty() bool {
	return t == nil || (t.CreatedAt == nil && t.StartedAt == nil && t.StoppedAt == nil)
}

// RawEvent
// ------------------------------------------------------------
// The wire shape of a single delivery record body, as produced by the
// EventBridge rules / Step Functions in front of the queues.
//
// Fields are loosely populated depending on the producer:
//   - job state change: Dimensions, Properties, detail / Timestamps
//   - instance registration: Dimensions, Properties, LastEventType, MetricTime
//   - task placement: Dimensions, Properties, MetricName, MetricTime
//
// RawEvent never leaves the normalizer; everything downstream sees Event.
type RawEvent struct {
	EventType     string            `json:"EventType,omitempty"`
	Dimensions    map[string]string `json:"Dimensions,omitempty"`
	Properties    map[string]any    `json:"Properties,omitempty"`
	Timestamps    *Timestamps       `json:"Timestamps,omitempty"`
	Detail        *Timestamps       `json:"detail,omitempty"`
	MetricTime    string            `json:"MetricTime,omitempty"`
	MetricName    string            `json:"MetricName,omitempty"`
	LastEventType string            `json:"LastEventType,omitempty"`
}

// Times returns Timestamps, falling back to the EventBridge "detail" block.
func (r *RawEvent) Times() *Timestamps {
	if !r.Timestamps.Empty() {
		return r.Timestamps
	}
	if !r.Detail.Empty() {
		return r.Detail
	}
	return nil
}

// Dimension is a single named axis of a metric.
type Dimension struct {
	Name  string
	Value string
}

// Event
// ------------------------------------------------------------
// A validated lifecycle event. Identifier fields are already canonical
// and the metric values are already derived.
//
// Properties keeps arbitrary descriptive values (job ids, exit codes ...),
// which is why it stays a map; it is only ever copied into the metric
// record verbatim.
type Event struct {
	Kind       EventKind
	Dimensions []Dimension
	Properties map[string]any
	Metrics    []Metric
	Timestamp  int64 // epoch milliseconds the metrics are recorded at
}
