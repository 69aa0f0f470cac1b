package normalize

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-metrics/internal/canon"
	"batch-metrics/internal/model"
)

func newNormalizer() *Normalizer {
	return New(canon.New(""), "")
}

const jobStateChange = `{
  "Dimensions": {
    "ECSCluster": "arn:aws:ecs:us-east-1:123456789012:cluster/prod-fleet_Batch_abc123",
    "JobQueue": "arn:aws:batch:us-east-1:123456789012:job-queue/high-priority",
    "JobDefinition": "arn:aws:batch:us-east-1:123456789012:job-definition/train:3"
  },
  "Properties": {
    "JobId": "0c2b7c8e-5d6f-4f2a-9d1b-111122223333",
    "ECSCluster": "arn:aws:ecs:us-east-1:123456789012:cluster/prod-fleet_Batch_abc123",
    "JobQueue": "arn:aws:batch:us-east-1:123456789012:job-queue/high-priority",
    "Attempts": 2
  },
  "detail": {"createdAt": 1000, "startedAt": 1500, "stoppedAt": 3000}
}`

func TestProcessJobStateChange(t *testing.T) {
	rec, err := newNormalizer().Process([]byte(jobStateChange))
	require.NoError(t, err)

	assert.Equal(t, model.DefaultNamespace, rec.Namespace)
	assert.Equal(t, int64(3000), rec.Timestamp)
	assert.Equal(t, []model.Dimension{
		{Name: "ECSCluster", Value: "prod-fleet"},
		{Name: "JobQueue", Value: "high-priority"},
		{Name: "JobDefinition", Value: "train:3"},
	}, rec.Dimensions)

	assert.Equal(t, "prod-fleet", rec.Properties["ECSCluster"])
	assert.Equal(t, "high-priority", rec.Properties["JobQueue"])
	assert.Equal(t, "0c2b7c8e-5d6f-4f2a-9d1b-111122223333", rec.Properties["JobId"])
	assert.Equal(t, json.Number("2"), rec.Properties["Attempts"])
	_, ok := rec.Properties["JobDefinition"]
	assert.False(t, ok, "absent fields are never defaulted")

	require.Len(t, rec.Metrics, 4)
	assert.Equal(t, model.Metric{Name: "WaitTime", Value: 500, Unit: model.UnitMilliseconds}, rec.Metrics[0])
	assert.Equal(t, model.Metric{Name: "SchedulingEfficiency", Value: 75, Unit: model.UnitPercent}, rec.Metrics[3])
}

func TestProcessTimestampsField(t *testing.T) {
	payload := `{"EventType":"JobStateChange","Dimensions":{"JobQueue":"q"},` +
		`"Timestamps":{"createdAt":10,"startedAt":20,"stoppedAt":50}}`

	rec, err := newNormalizer().Process([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(50), rec.Timestamp)
	assert.Equal(t, float64(30), rec.Metrics[1].Value)
}

func TestProcessTaskPlacement(t *testing.T) {
	payload := `{
	  "Dimensions": {"ECSCluster": "arn:aws:ecs:cluster/spot_Batch_1", "JobQueue": "arn:aws:batch:job-queue/low"},
	  "Properties": {"TaskArn": "arn:aws:ecs:task/spot_Batch_1/abcdef", "JobQueue": "arn:aws:batch:job-queue/low"},
	  "MetricName": "RunTaskPlaced",
	  "MetricTime": "2024-05-01T12:30:00Z"
	}`

	rec, err := newNormalizer().Process([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(1714566600000), rec.Timestamp)
	assert.Equal(t, []model.Metric{{Name: "RunTaskPlaced", Value: 1, Unit: model.UnitCount}}, rec.Metrics)
	assert.Equal(t, []model.Dimension{
		{Name: "ECSCluster", Value: "spot"},
		{Name: "JobQueue", Value: "low"},
	}, rec.Dimensions)
	assert.Equal(t, "low", rec.Properties["JobQueue"])
	assert.Equal(t, "arn:aws:ecs:task/spot_Batch_1/abcdef", rec.Properties["TaskArn"], "unknown keys are not canonicalized")
}

func TestProcessInstanceRegistration(t *testing.T) {
	payload := `{
	  "Dimensions": {
	    "AvailabilityZone": "us-east-1a",
	    "ECSCluster": "arn:aws:ecs:us-east-1:123456789012:cluster/gpu_Batch_9",
	    "InstanceType": "p4d.24xlarge"
	  },
	  "Properties": {"InstanceId": "i-0123456789abcdef0"},
	  "LastEventType": "INSTANCE_REGISTERED",
	  "MetricTime": "2024-05-01T00:00:00Z"
	}`

	n := newNormalizer()
	raw, err := Decode([]byte(payload))
	require.NoError(t, err)

	ev, err := n.Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, model.KindInstanceRegistration, ev.Kind)
	assert.Equal(t, []model.Dimension{
		{Name: "AvailabilityZone", Value: "us-east-1a"},
		{Name: "ECSCluster", Value: "gpu"},
		{Name: "InstanceType", Value: "p4d.24xlarge"},
	}, ev.Dimensions)
	assert.Equal(t, map[string]any{
		"InstanceId":       "i-0123456789abcdef0",
		"AvailabilityZone": "us-east-1a",
		"ECSCluster":       "gpu",
		"InstanceType":     "p4d.24xlarge",
	}, ev.Properties)
	assert.Equal(t, []model.Metric{{Name: "INSTANCE_REGISTERED", Value: 1, Unit: model.UnitCount}}, ev.Metrics)
}

func TestProcessInstanceRegistrationDimensionWins(t *testing.T) {
	payload := `{
	  "EventType": "InstanceRegistration",
	  "Dimensions": {
	    "AvailabilityZone": "us-east-1a",
	    "ECSCluster": "cpu_Batch_1",
	    "InstanceType": "m5.large"
	  },
	  "Properties": {"InstanceId": "i-1", "InstanceType": "m5.xlarge", "AvailabilityZone": "us-east-1b"},
	  "MetricName": "ignored",
	  "LastEventType": "INSTANCE_REGISTERED",
	  "MetricTime": "2024-05-01T00:00:00Z"
	}`

	rec, err := newNormalizer().Process([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "m5.large", rec.Properties["InstanceType"])
	assert.Equal(t, "us-east-1a", rec.Properties["AvailabilityZone"])
	for _, d := range rec.Dimensions {
		if v, ok := rec.Properties[d.Name]; ok {
			assert.Equal(t, d.Value, v, "property %s disagrees with its dimension", d.Name)
		}
	}
	require.Len(t, rec.Metrics, 1)
	assert.Equal(t, "INSTANCE_REGISTERED", rec.Metrics[0].Name)
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", `{"Dimensions":`, model.ErrMalformedEvent},
		{"trailing data", `{"EventType":"TaskPlacement","Dimensions":{"JobQueue":"q"},"MetricName":"x",` +
			`"MetricTime":"2024-01-01T00:00:00Z"} trailing junk`, model.ErrMalformedEvent},
		{"two values", `{"Dimensions":{"JobQueue":"q"},"MetricName":"x","MetricTime":"2024-01-01T00:00:00Z"} {}`, model.ErrMalformedEvent},
		{"wrong dimension type", `{"Dimensions":{"JobQueue":7}}`, model.ErrMalformedEvent},
		{"nothing to publish", `{"MetricName":"x","MetricTime":"2024-05-01T00:00:00Z"}`, model.ErrMalformedEvent},
		{"empty maps", `{"Dimensions":{},"Properties":{},"MetricName":"x","MetricTime":"2024-05-01T00:00:00Z"}`, model.ErrMalformedEvent},
		{"unknown event type", `{"EventType":"Reboot","Dimensions":{"JobQueue":"q"}}`, model.ErrMalformedEvent},
		{"bad metric time", `{"Dimensions":{"JobQueue":"q"},"MetricName":"x","MetricTime":"2024-05-01 00:00:00"}`, model.ErrMalformedEvent},
		{"placement without name", `{"Dimensions":{"JobQueue":"q"},"MetricTime":"2024-05-01T00:00:00Z"}`, model.ErrMalformedEvent},
		{"placement without time", `{"Dimensions":{"JobQueue":"q"},"MetricName":"x"}`, model.ErrMalformedEvent},
		{"registration missing zone", `{"Dimensions":{"ECSCluster":"c","InstanceType":"m5.large"},"Properties":{"InstanceId":"i-1"},` +
			`"LastEventType":"REGISTERED","MetricTime":"2024-05-01T00:00:00Z"}`, model.ErrMalformedEvent},
		{"registration missing instance id", `{"Dimensions":{"AvailabilityZone":"a","ECSCluster":"c","InstanceType":"m5.large"},` +
			`"LastEventType":"REGISTERED","MetricTime":"2024-05-01T00:00:00Z"}`, model.ErrMalformedEvent},
		{"job missing timestamps", `{"EventType":"JobStateChange","Dimensions":{"JobQueue":"q"}}`, model.ErrInvalidInterval},
		{"job partial timestamps", `{"Dimensions":{"JobQueue":"q"},"detail":{"createdAt":1,"stoppedAt":5}}`, model.ErrInvalidInterval},
		{"job zero total", `{"Dimensions":{"JobQueue":"q"},"detail":{"createdAt":1000,"startedAt":1000,"stoppedAt":1000}}`, model.ErrDivisionByZero},
	}

	n := newNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := n.Process([]byte(tt.payload))
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, model.MetricRecord{}, rec)
		})
	}
}

func TestNormalizeOrdersDimensions(t *testing.T) {
	raw := model.RawEvent{
		Dimensions: map[string]string{
			"Zeta":             "z",
			"JobQueue":         "q",
			"Alpha":            "a",
			"AvailabilityZone": "us-east-1b",
		},
		MetricName: "Placed",
		MetricTime: "2024-05-01T00:00:00Z",
	}

	ev, err := newNormalizer().Normalize(raw)
	require.NoError(t, err)

	var names []string
	for _, d := range ev.Dimensions {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"AvailabilityZone", "JobQueue", "Alpha", "Zeta"}, names)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	raw := model.RawEvent{
		Dimensions: map[string]string{"ECSCluster": "cluster/c_Batch_1"},
		Properties: map[string]any{"ECSCluster": "cluster/c_Batch_1"},
		MetricName: "Placed",
		MetricTime: "2024-05-01T00:00:00Z",
	}

	_, err := newNormalizer().Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "cluster/c_Batch_1", raw.Dimensions["ECSCluster"])
	assert.Equal(t, "cluster/c_Batch_1", raw.Properties["ECSCluster"])
}

func TestRecordNamespace(t *testing.T) {
	n := New(canon.New(""), "Custom")
	rec := n.Record(model.Event{Timestamp: 7})
	assert.Equal(t, "Custom", rec.Namespace)
	assert.Equal(t, int64(7), rec.Timestamp)
}
