package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperationSnapshot(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordOperation("mailbox.read", "ok", time.Millisecond)
	m.RecordOperation("mailbox.read", "empty", time.Millisecond)
	m.RecordOperation("mailbox.write", "too_large", time.Millisecond)
	m.RecordRetry("read_typed")

	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalOperations)
	assert.Equal(t, int64(2), s.FailedOps)
	assert.Equal(t, int64(1), s.TotalRetries)
	assert.GreaterOrEqual(t, s.UptimeSeconds, 0.0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("mailbox.read", "empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries.WithLabelValues("read_typed")))
}

func TestTimerNilSafe(t *testing.T) {
	NewTimer(nil, "mailbox.read").Stop("ok")

	m := NewMetrics(prometheus.NewRegistry())
	NewTimer(m, "mailbox.clear").Stop("ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("mailbox.clear", "ok")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, int64(3), m.Snapshot().TotalRequests)
}

func TestWSGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()
	m.RecordWSMessage("update")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))
	require.Equal(t, 1.0, testutil.ToFloat64(m.WSMessages.WithLabelValues("update")))
}
