//go:build linux || darwin || freebsd

package mailbox

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/GriffinCanCode/shmbridge/internal/channel"
	"github.com/GriffinCanCode/shmbridge/internal/envelope"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/shmbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/shmbridge/internal/shared/types"
	"github.com/GriffinCanCode/shmbridge/internal/shm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	provider *Provider
	metrics  *monitoring.Metrics
	dir      string
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	dir := t.TempDir()

	ch, err := channel.Open(channel.Config{
		Name:     "mailbox",
		Mode:     shm.ReadWrite,
		Capacity: capacity,
		Dir:      dir,
	}, nil)
	require.NoError(t, err)

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	coord := resilience.NewCoordinator(resilience.RetrySettings{
		MaxRetries:       3,
		RetryDelay:       time.Millisecond,
		OperationTimeout: time.Second,
		OnRetry:          func(op string, _ int, _ error) { metrics.RecordRetry(op) },
	}, nil)
	protocol := envelope.NewProtocol(ch, coord, nil)

	return &fixture{
		provider: NewProvider(ch, protocol, metrics, nil),
		metrics:  metrics,
		dir:      dir,
	}
}

func (f *fixture) exec(t *testing.T, toolID string, params map[string]interface{}) *types.Result {
	t.Helper()
	res, err := f.provider.Execute(context.Background(), toolID, params, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func requireCode(t *testing.T, res *types.Result, code string) {
	t.Helper()
	require.False(t, res.Success, "expected failure %s", code)
	require.NotNil(t, res.Error)
	assert.Equal(t, code, res.Code)
	assert.Nil(t, res.Data)
}

func TestDefinition(t *testing.T) {
	def := newFixture(t, 0).provider.Definition()

	assert.Equal(t, ServiceID, def.ID)
	assert.Equal(t, types.CategoryMailbox, def.Category)
	require.Len(t, def.Tools, 10)
	for _, tool := range def.Tools {
		assert.True(t, strings.HasPrefix(tool.ID, "mailbox."), tool.ID)
	}
}

func TestWriteThenRead(t *testing.T) {
	f := newFixture(t, 0)

	res := f.exec(t, "mailbox.write", map[string]interface{}{"data": `{"temp":21.5,"ok":true}`})
	require.True(t, res.Success)
	assert.Equal(t, 23, res.Data["size"])

	res = f.exec(t, "mailbox.read", nil)
	require.True(t, res.Success)
	assert.Equal(t, map[string]interface{}{"temp": 21.5, "ok": true}, res.Data["value"])
	assert.False(t, res.Timestamp.IsZero())
}

func TestWriteAcceptsStructuredData(t *testing.T) {
	f := newFixture(t, 0)

	res := f.exec(t, "mailbox.write", map[string]interface{}{
		"data": []interface{}{1.0, "two"},
	})
	require.True(t, res.Success)

	res = f.exec(t, "mailbox.read", nil)
	require.True(t, res.Success)
	assert.Equal(t, []interface{}{1.0, "two"}, res.Data["value"])
}

func TestWriteFailures(t *testing.T) {
	f := newFixture(t, 64)

	tests := []struct {
		name   string
		params map[string]interface{}
		code   string
	}{
		{"missing data", map[string]interface{}{}, CodeInvalidParams},
		{"not json", map[string]interface{}{"data": "{oops"}, CodeInvalidJSON},
		{"bare word", map[string]interface{}{"data": "hello"}, CodeInvalidJSON},
		{"too large", map[string]interface{}{"data": `"` + strings.Repeat("x", 60) + `"`}, CodeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, f.exec(t, "mailbox.write", tt.params), tt.code)
		})
	}

	requireCode(t, f.exec(t, "mailbox.read", nil), CodeEmpty)
}

func TestClearThenReadIsEmpty(t *testing.T) {
	f := newFixture(t, 0)

	require.True(t, f.exec(t, "mailbox.write", map[string]interface{}{"data": `[1,2,3]`}).Success)

	res := f.exec(t, "mailbox.clear", nil)
	require.True(t, res.Success)
	assert.Equal(t, true, res.Data["cleared"])

	requireCode(t, f.exec(t, "mailbox.read", nil), CodeEmpty)
}

func TestReadOnlyProvider(t *testing.T) {
	f := newFixture(t, 0)
	require.True(t, f.exec(t, "mailbox.write", map[string]interface{}{"data": `{"a":1}`}).Success)

	ro, err := channel.Open(channel.Config{Name: "mailbox", Mode: shm.ReadOnly, Dir: f.dir}, nil)
	require.NoError(t, err)
	p := NewProvider(ro, envelope.NewProtocol(ro, nil, nil), nil, nil)

	res, err := p.Execute(context.Background(), "mailbox.write", map[string]interface{}{"data": `{}`}, nil)
	require.NoError(t, err)
	requireCode(t, res, CodeReadOnlyMode)

	res, err = p.Execute(context.Background(), "mailbox.clear", nil, nil)
	require.NoError(t, err)
	requireCode(t, res, CodeReadOnlyMode)

	res, err = p.Execute(context.Background(), "mailbox.read", nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestReadAfterUnlinkIsNotFound(t *testing.T) {
	f := newFixture(t, 0)
	require.True(t, f.exec(t, "mailbox.write", map[string]interface{}{"data": `1`}).Success)

	ro, err := channel.Open(channel.Config{Name: "mailbox", Mode: shm.ReadOnly, Dir: f.dir}, nil)
	require.NoError(t, err)
	require.NoError(t, shm.Unlink(f.dir, "mailbox"))

	p := NewProvider(ro, envelope.NewProtocol(ro, nil, nil), nil, nil)
	res, err := p.Execute(context.Background(), "mailbox.read", nil, nil)
	require.NoError(t, err)
	requireCode(t, res, CodeNotFound)
}

func TestReadNonJSONPayload(t *testing.T) {
	f := newFixture(t, 0)
	require.NoError(t, f.provider.channel.Write([]byte{0x01, 0x02, 0x03}))

	requireCode(t, f.exec(t, "mailbox.read", nil), CodeDeserialize)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, 1024)

	res := f.exec(t, "mailbox.info", nil)
	require.True(t, res.Success)
	assert.Equal(t, "mailbox", res.Data["name"])
	assert.Equal(t, 1024, res.Data["capacity"])
	assert.Equal(t, 1020, res.Data["max_size"])
	assert.Equal(t, false, res.Data["has_data"])

	require.True(t, f.exec(t, "mailbox.write", map[string]interface{}{"data": `{"k":"v"}`}).Success)
	res = f.exec(t, "mailbox.info", nil)
	assert.Equal(t, true, res.Data["has_data"])
	assert.Equal(t, "application/json", res.Data["content_type"])
}

func TestTypedRoundTrip(t *testing.T) {
	f := newFixture(t, 0)

	res := f.exec(t, "mailbox.write_typed", map[string]interface{}{
		"type":     "SystemStatus",
		"data":     `{"status":"healthy","cpu_usage":42,"memory_usage":536870912}`,
		"metadata": map[string]interface{}{"source": "test"},
	})
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, "SystemStatus", res.Data["type"])

	res = f.exec(t, "mailbox.read_typed", map[string]interface{}{"type": "systemstatus"})
	require.True(t, res.Success, "%v", res.Error)
	assert.Equal(t, "SystemStatus", res.Data["type"])

	env, ok := res.Data["envelope"].(*envelope.Envelope[envelope.Record])
	require.True(t, ok)
	assert.Equal(t, envelope.SystemStatus{Status: "healthy", CPUUsage: 42, MemoryUsage: 536870912}, env.Payload)
	assert.Equal(t, map[string]interface{}{"source": "test"}, env.Metadata)
}

func TestTypedFailures(t *testing.T) {
	f := newFixture(t, 0)
	require.True(t, f.exec(t, "mailbox.write", map[string]interface{}{"data": `{"keep":true}`}).Success)

	requireCode(t, f.exec(t, "mailbox.write_typed", map[string]interface{}{"type": "widget", "data": `{}`}), CodeUnknownType)
	requireCode(t, f.exec(t, "mailbox.read_typed", map[string]interface{}{"type": "widget"}), CodeUnknownType)
	requireCode(t, f.exec(t, "mailbox.write_typed", map[string]interface{}{"type": "message", "data": `{"content":1}`}), CodeDeserialize)
	requireCode(t, f.exec(t, "mailbox.write_typed", map[string]interface{}{"type": "message", "data": `{"content":"a","sender":"b","color":"red"}`}), CodeDeserialize)

	// Nothing above touched the segment.
	res := f.exec(t, "mailbox.read", nil)
	require.True(t, res.Success)
	assert.Equal(t, map[string]interface{}{"keep": true}, res.Data["value"])

	// A raw document without a type field is not an envelope.
	requireCode(t, f.exec(t, "mailbox.read_typed", map[string]interface{}{"type": "message"}), CodeDeserialize)

	require.True(t, f.exec(t, "mailbox.clear", nil).Success)
	requireCode(t, f.exec(t, "mailbox.read_typed", map[string]interface{}{"type": "message"}), CodeEmpty)
}

func TestCreateTools(t *testing.T) {
	f := newFixture(t, 0)

	tests := []struct {
		name   string
		toolID string
		params map[string]interface{}
		kind   string
		want   envelope.Record
	}{
		{
			name:   "system status",
			toolID: "mailbox.create_system_status",
			params: map[string]interface{}{"status": "degraded", "cpu_usage": 91.5, "memory_usage": 1024.0},
			kind:   "systemstatus",
			want:   envelope.SystemStatus{Status: "degraded", CPUUsage: 91.5, MemoryUsage: 1024},
		},
		{
			name:   "message",
			toolID: "mailbox.create_message",
			params: map[string]interface{}{"content": "hello", "sender": "ops", "priority": 2.0},
			kind:   "message",
			want:   envelope.Message{Content: "hello", Sender: "ops", Priority: 2},
		},
		{
			name:   "metrics",
			toolID: "mailbox.create_metrics",
			params: map[string]interface{}{"name": "latency", "value": 12.5, "unit": "ms", "tags": map[string]interface{}{"region": "eu"}},
			kind:   "metrics",
			want:   envelope.Metrics{Name: "latency", Value: 12.5, Unit: "ms", Tags: map[string]string{"region": "eu"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.exec(t, tt.toolID, tt.params)
			require.True(t, res.Success, "%v", res.Error)
			assert.Equal(t, tt.want, res.Data["record"])

			res = f.exec(t, "mailbox.read_typed", map[string]interface{}{"type": tt.kind})
			require.True(t, res.Success, "%v", res.Error)
			env := res.Data["envelope"].(*envelope.Envelope[envelope.Record])
			assert.Equal(t, tt.want, env.Payload)
		})
	}
}

func TestCreateToolsRejectBadParams(t *testing.T) {
	f := newFixture(t, 0)

	requireCode(t, f.exec(t, "mailbox.create_system_status", map[string]interface{}{"status": "ok", "cpu_usage": "high", "memory_usage": 1.0}), CodeInvalidParams)
	requireCode(t, f.exec(t, "mailbox.create_system_status", map[string]interface{}{"status": "ok", "cpu_usage": 1.0, "memory_usage": -1.0}), CodeInvalidParams)
	for _, mem := range []float64{math.Exp2(64), math.Inf(1), math.NaN()} {
		requireCode(t, f.exec(t, "mailbox.create_system_status", map[string]interface{}{"status": "ok", "cpu_usage": 1.0, "memory_usage": mem}), CodeInvalidParams)
	}
	requireCode(t, f.exec(t, "mailbox.create_message", map[string]interface{}{"content": "x"}), CodeInvalidParams)
	requireCode(t, f.exec(t, "mailbox.create_metrics", map[string]interface{}{"name": "x", "value": 1.0, "unit": "s", "metadata": "nope"}), CodeInvalidParams)
}

func TestCreateTooLarge(t *testing.T) {
	f := newFixture(t, 128)

	res := f.exec(t, "mailbox.create_message", map[string]interface{}{
		"content": strings.Repeat("x", 200),
		"sender":  "ops",
	})
	requireCode(t, res, CodeTooLarge)
}

func TestListSupportedTypes(t *testing.T) {
	res := newFixture(t, 0).exec(t, "mailbox.list_supported_types", nil)
	require.True(t, res.Success)
	assert.Equal(t, 4, res.Data["count"])

	list := res.Data["types"].([]map[string]interface{})
	names := make([]string, 0, len(list))
	for _, entry := range list {
		names = append(names, entry["name"].(string))
		assert.NotEmpty(t, entry["description"])
	}
	assert.Equal(t, []string{"systemstatus", "message", "configuration", "metrics"}, names)
}

func TestUnknownTool(t *testing.T) {
	f := newFixture(t, 0)
	for _, toolID := range []string{"mailbox.delete", "mailbox.x1", "mailbox.x2"} {
		requireCode(t, f.exec(t, toolID, nil), CodeUnknownTool)
	}
	assert.Equal(t, 0, testutil.CollectAndCount(f.metrics.Operations))
	assert.Equal(t, 0, testutil.CollectAndCount(f.metrics.OperationDuration))
}

func TestRetriesExhaustedIsReturnedAsError(t *testing.T) {
	f := newFixture(t, 64)

	err := shm.With("mailbox", shm.ReadWrite, shm.Options{Dir: f.dir}, func(seg *shm.Segment) error {
		return seg.WriteAt(0, []byte{0xff, 0xff, 0, 0})
	})
	require.NoError(t, err)

	// Raw reads are not retried.
	requireCode(t, f.exec(t, "mailbox.read", nil), CodeCorrupt)

	res, err := f.provider.Execute(context.Background(), "mailbox.read_typed", map[string]interface{}{"type": "message"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrRetriesExhausted)
	assert.ErrorIs(t, err, shm.ErrCorrupt)
	requireCode(t, res, CodeRetriesExhausted)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Retries.WithLabelValues("read_typed")))
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t, 0)

	f.exec(t, "mailbox.read", nil)
	f.exec(t, "mailbox.write", map[string]interface{}{"data": `{}`})
	f.exec(t, "mailbox.read", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("mailbox.read", CodeEmpty)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("mailbox.read", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("mailbox.write", "ok")))

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(3), snap.TotalOperations)
	assert.Equal(t, int64(1), snap.FailedOps)
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{shm.ErrNotFound, CodeNotFound},
		{&shm.TooLargeError{Size: 10, Limit: 5}, CodeTooLarge},
		{&shm.RangeError{Offset: 10, Length: 4, Capacity: 8}, CodeOutOfRange},
		{resilience.ErrTimeout, CodeTimeout},
		{context.DeadlineExceeded, CodeTimeout},
		{&resilience.RetriesExhaustedError{Op: "x", Attempts: 3, Err: shm.ErrCorrupt}, CodeRetriesExhausted},
		{assert.AnError, CodeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err), tt.err.Error())
	}
}
