package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndHandler(t *testing.T) {
	m := New()

	m.Transitions.WithLabelValues("approve", "ok").Inc()
	m.Transitions.WithLabelValues("approve", "conflict").Inc()
	m.Transitions.WithLabelValues("approve", "conflict").Inc()
	m.AuditWrites.WithLabelValues(AuditSpooled).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Transitions.WithLabelValues("approve", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWrites.WithLabelValues(AuditSpooled)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "component_transitions_total")
	assert.Contains(t, rec.Body.String(), "audit_writes_total")
}
