// Package emf publishes metric records, either as CloudWatch Embedded
// Metric Format log lines or through the PutMetricData API.
package emf

import (
	"fmt"
	"math"
	"strings"

	"batch-metrics/internal/model"

	json "github.com/goccy/go-json"
)

// CloudWatch limits that are cheaper to check here than to learn about
// from a rejected log line.
const (
	MaxDimensions       = 30
	MaxMetrics          = 100
	MaxNameLength       = 255
	MaxValueLength      = 1024
	MaxDocumentBytes    = 256 * 1024
	metadataKey         = "_aws"
	dimensionNamePrefix = ':'
)

// Metadata is the "_aws" block of an EMF document.
type Metadata struct {
	Timestamp         int64             `json:"Timestamp"`
	CloudWatchMetrics []MetricDirective `json:"CloudWatchMetrics"`
}

// MetricDirective tells CloudWatch which top-level members are metrics
// and which are dimensions.
type MetricDirective struct {
	Namespace  string             `json:"Namespace"`
	Dimensions [][]string         `json:"Dimensions"`
	Metrics    []MetricDefinition `json:"Metrics"`
}

// MetricDefinition names one metric member and its unit.
type MetricDefinition struct {
	Name string `json:"Name"`
	Unit string `json:"Unit"`
}

// Validate checks rec against the CloudWatch limits. Failures wrap
// model.ErrSinkRejected.
func Validate(rec model.MetricRecord) error {
	reject := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, model.ErrSinkRejected)...)
	}

	if rec.Namespace == "" || len(rec.Namespace) > MaxNameLength {
		return reject("namespace %q", rec.Namespace)
	}
	if len(rec.Metrics) == 0 || len(rec.Metrics) > MaxMetrics {
		return reject("%d metrics", len(rec.Metrics))
	}
	if len(rec.Dimensions) > MaxDimensions {
		return reject("%d dimensions", len(rec.Dimensions))
	}

	dims := make(map[string]string, len(rec.Dimensions))
	for _, d := range rec.Dimensions {
		if d.Name == "" || len(d.Name) > MaxNameLength || d.Name[0] == dimensionNamePrefix || !printableASCII(d.Name) {
			return reject("dimension name %q", d.Name)
		}
		if strings.TrimSpace(d.Value) == "" || len(d.Value) > MaxValueLength || !printableASCII(d.Value) {
			return reject("dimension %s value %q", d.Name, d.Value)
		}
		if _, dup := dims[d.Name]; dup {
			return reject("duplicate dimension %s", d.Name)
		}
		dims[d.Name] = d.Value
	}

	for k, v := range rec.Properties {
		if k == metadataKey {
			return reject("property %s is reserved", k)
		}
		if dv, ok := dims[k]; ok && v != dv {
			return reject("property %s=%v conflicts with dimension value %q", k, v, dv)
		}
	}

	seen := make(map[string]bool, len(rec.Metrics))
	for _, m := range rec.Metrics {
		if m.Name == "" || len(m.Name) > MaxNameLength || m.Name == metadataKey {
			return reject("metric name %q", m.Name)
		}
		if seen[m.Name] {
			return reject("duplicate metric %s", m.Name)
		}
		seen[m.Name] = true
		if _, ok := dims[m.Name]; ok {
			return reject("metric %s shadows a dimension", m.Name)
		}
		if _, ok := rec.Properties[m.Name]; ok {
			return reject("metric %s shadows a property", m.Name)
		}
		if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
			return reject("metric %s value %v", m.Name, m.Value)
		}
	}
	return nil
}

// Document renders rec as an EMF document. Every dimension gets its own
// single-key dimension set so each one is independently filterable, and
// no default dimensions (ServiceName, LogGroup ...) are added.
func Document(rec model.MetricRecord) map[string]any {
	doc := make(map[string]any, len(rec.Properties)+len(rec.Dimensions)+len(rec.Metrics)+1)

	for k, v := range rec.Properties {
		doc[k] = v
	}

	sets := make([][]string, 0, len(rec.Dimensions))
	for _, d := range rec.Dimensions {
		sets = append(sets, []string{d.Name})
		doc[d.Name] = d.Value
	}

	defs := make([]MetricDefinition, 0, len(rec.Metrics))
	for _, m := range rec.Metrics {
		defs = append(defs, MetricDefinition{Name: m.Name, Unit: string(m.Unit)})
		doc[m.Name] = m.Value
	}

	doc[metadataKey] = Metadata{
		Timestamp: rec.Timestamp,
		CloudWatchMetrics: []MetricDirective{{
			Namespace:  rec.Namespace,
			Dimensions: sets,
			Metrics:    defs,
		}},
	}
	return doc
}

// Marshal validates rec and encodes its EMF document.
func Marshal(rec model.MetricRecord) ([]byte, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	b, err := json.Marshal(Document(rec))
	if err != nil {
		return nil, fmt.Errorf("encode emf: %v: %w", err, model.ErrSinkRejected)
	}
	if len(b) > MaxDocumentBytes {
		return nil, fmt.Errorf("emf document is %d bytes: %w", len(b), model.ErrSinkRejected)
	}
	return b, nil
}

// Parsed is an EMF document read back into its parts.
type Parsed struct {
	Namespace  string
	Timestamp  int64
	Dimensions []model.Dimension // in dimension set order
	Metrics    []model.Metric
	Fields     map[string]any // every other top-level member, dimensions included
}

// Parse reads an EMF document produced by Marshal.
func Parse(b []byte) (Parsed, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Parsed{}, err
	}

	var meta Metadata
	if err := json.Unmarshal(raw[metadataKey], &meta); err != nil {
		return Parsed{}, fmt.Errorf("metadata: %w", err)
	}
	if len(meta.CloudWatchMetrics) != 1 {
		return Parsed{}, fmt.Errorf("want one metric directive, got %d", len(meta.CloudWatchMetrics))
	}
	dir := meta.CloudWatchMetrics[0]
	delete(raw, metadataKey)

	p := Parsed{
		Namespace: dir.Namespace,
		Timestamp: meta.Timestamp,
		Fields:    make(map[string]any, len(raw)),
	}

	for _, set := range dir.Dimensions {
		for _, name := range set {
			var v string
			if err := json.Unmarshal(raw[name], &v); err != nil {
				return Parsed{}, fmt.Errorf("dimension %s: %w", name, err)
			}
			p.Dimensions = append(p.Dimensions, model.Dimension{Name: name, Value: v})
		}
	}

	for _, def := range dir.Metrics {
		var v float64
		if err := json.Unmarshal(raw[def.Name], &v); err != nil {
			return Parsed{}, fmt.Errorf("metric %s: %w", def.Name, err)
		}
		p.Metrics = append(p.Metrics, model.Metric{Name: def.Name, Value: v, Unit: model.Unit(def.Unit)})
		delete(raw, def.Name)
	}

	for k, v := range raw {
		var val any
		dec := json.NewDecoder(strings.NewReader(string(v)))
		dec.UseNumber()
		if err := dec.Decode(&val); err != nil {
			return Parsed{}, fmt.Errorf("field %s: %w", k, err)
		}
		p.Fields[k] = val
	}
	return p, nil
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
