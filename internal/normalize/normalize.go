// Package normalize validates raw lifecycle event payloads and turns them
// into typed events and metric records.
package normalize

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"batch-metrics/internal/canon"
	"batch-metrics/internal/derive"
	"batch-metrics/internal/model"

	json "github.com/goccy/go-json"
)

// MetricTimeLayout is the only accepted MetricTime format (UTC, second precision).
const MetricTimeLayout = "2006-01-02T15:04:05Z"

// Normalizer
//
// Stateless; safe for concurrent use by the orchestrator workers.
type Normalizer struct {
	canon     canon.Canonicalizer
	namespace string
}

// New returns a Normalizer publishing records under namespace
// (model.DefaultNamespace when empty).
func New(c canon.Canonicalizer, namespace string) *Normalizer {
	if namespace == "" {
		namespace = model.DefaultNamespace
	}
	return &Normalizer{canon: c, namespace: namespace}
}

// Process decodes, normalizes and builds the metric record for one payload.
func (n *Normalizer) Process(payload []byte) (model.MetricRecord, error) {
	raw, err := Decode(payload)
	if err != nil {
		return model.MetricRecord{}, err
	}
	ev, err := n.Normalize(raw)
	if err != nil {
		return model.MetricRecord{}, err
	}
	return n.Record(ev), nil
}

// Decode parses a record body. The body must hold exactly one JSON value.
// Numbers in Properties are kept as json.Number so they are written back
// exactly as received.
func Decode(payload []byte) (model.RawEvent, error) {
	var raw model.RawEvent

	if !json.Valid(payload) {
		return model.RawEvent{}, fmt.Errorf("decode payload: not a single JSON value: %w", model.ErrMalformedEvent)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return model.RawEvent{}, fmt.Errorf("decode payload: %v: %w", err, model.ErrMalformedEvent)
	}
	return raw, nil
}

// Normalize turns a decoded payload into a typed Event.
//
//  1. shape check (something to publish, known event type, parseable MetricTime)
//  2. canonicalize ECSCluster / JobQueue / JobDefinition in Dimensions and Properties
//  3. per kind validation and metric derivation
//
// Any failure rejects the whole event; nothing partially normalized is returned.
func (n *Normalizer) Normalize(raw model.RawEvent) (model.Event, error) {
	if len(raw.Dimensions) == 0 && len(raw.Properties) == 0 {
		return model.Event{}, fmt.Errorf("no Dimensions or Properties: %w", model.ErrMalformedEvent)
	}

	kind, err := resolveKind(raw)
	if err != nil {
		return model.Event{}, err
	}

	var (
		metricTime    int64
		hasMetricTime bool
	)
	if raw.MetricTime != "" {
		t, err := time.Parse(MetricTimeLayout, raw.MetricTime)
		if err != nil {
			return model.Event{}, fmt.Errorf("MetricTime %q: %w", raw.MetricTime, model.ErrMalformedEvent)
		}
		metricTime, hasMetricTime = t.UnixMilli(), true
	}

	dims := make(map[string]string, len(raw.Dimensions))
	for k, v := range raw.Dimensions {
		dims[k] = n.canon.Field(k, v)
	}

	props := make(map[string]any, len(raw.Properties))
	for k, v := range raw.Properties {
		if s, ok := v.(string); ok {
			props[k] = n.canon.Field(k, s)
			continue
		}
		props[k] = v
	}

	ev := model.Event{
		Kind:       kind,
		Properties: props,
	}

	switch kind {
	case model.KindJobStateChange:
		times := raw.Times()
		r, err := derive.Intervals(times)
		if err != nil {
			return model.Event{}, err
		}
		ev.Metrics = r.Metrics()
		// summary statistics are registered at job stop time
		ev.Timestamp = *times.StoppedAt

	case model.KindInstanceRegistration:
		name := raw.LastEventType
		if name == "" {
			name = raw.MetricName
		}
		if name == "" || !hasMetricTime {
			return model.Event{}, fmt.Errorf("instance registration needs a metric name and MetricTime: %w", model.ErrMalformedEvent)
		}
		for _, k := range []string{model.KeyAvailabilityZone, model.KeyECSCluster, model.KeyInstanceType} {
			v, ok := dims[k]
			if !ok || v == "" {
				return model.Event{}, fmt.Errorf("instance registration missing dimension %s: %w", k, model.ErrMalformedEvent)
			}
			// the dimension value overwrites whatever the property said
			props[k] = v
		}
		if _, ok := props[model.KeyInstanceID]; !ok {
			id, ok := dims[model.KeyInstanceID]
			if !ok {
				return model.Event{}, fmt.Errorf("instance registration missing %s: %w", model.KeyInstanceID, model.ErrMalformedEvent)
			}
			props[model.KeyInstanceID] = id
		}
		ev.Metrics = []model.Metric{{Name: name, Value: 1, Unit: model.UnitCount}}
		ev.Timestamp = metricTime

	case model.KindTaskPlacement:
		if raw.MetricName == "" || !hasMetricTime {
			return model.Event{}, fmt.Errorf("task placement needs MetricName and MetricTime: %w", model.ErrMalformedEvent)
		}
		ev.Metrics = []model.Metric{{Name: raw.MetricName, Value: 1, Unit: model.UnitCount}}
		ev.Timestamp = metricTime
	}

	ev.Dimensions = orderDimensions(dims)
	return ev, nil
}

// Record builds the metric submission for a normalized event.
func (n *Normalizer) Record(ev model.Event) model.MetricRecord {
	return model.MetricRecord{
		Namespace:  n.namespace,
		Dimensions: ev.Dimensions,
		Properties: ev.Properties,
		Metrics:    ev.Metrics,
		Timestamp:  ev.Timestamp,
	}
}

// resolveKind picks the event shape. An explicit EventType wins; the
// producers that predate EventType are recognized by their fields.
func resolveKind(raw model.RawEvent) (model.EventKind, error) {
	if raw.EventType != "" {
		k := model.EventKind(raw.EventType)
		if !k.Valid() {
			return "", fmt.Errorf("unknown EventType %q: %w", raw.EventType, model.ErrMalformedEvent)
		}
		return k, nil
	}

	switch {
	case raw.Times() != nil:
		return model.KindJobStateChange, nil
	case raw.LastEventType != "":
		return model.KindInstanceRegistration, nil
	}
	return model.KindTaskPlacement, nil
}

// orderDimensions emits the bounded keys first, in their fixed order,
// then anything else sorted by name so records are stable across retries.
func orderDimensions(dims map[string]string) []model.Dimension {
	out := make([]model.Dimension, 0, len(dims))
	seen := make(map[string]bool, len(model.DimensionOrder))

	for _, k := range model.DimensionOrder {
		seen[k] = true
		if v, ok := dims[k]; ok {
			out = append(out, model.Dimension{Name: k, Value: v})
		}
	}

	var rest []string
	for k := range dims {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, model.Dimension{Name: k, Value: dims[k]})
	}
	return out
}
