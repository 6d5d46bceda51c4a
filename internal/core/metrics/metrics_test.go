package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/correlate/internal/correlation"
	"github.com/solatis/correlate/internal/types"
)

var _ correlation.FailureRecorder = (*Metrics)(nil)

func TestObserveRequest(t *testing.T) {
	m := New()
	m.ObserveRequest("Create", "OK", 10*time.Millisecond)
	m.ObserveRequest("Create", "OK", 20*time.Millisecond)
	m.ObserveRequest("Create", "InvalidArgument", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("Create", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("Create", "InvalidArgument")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestValidationFailed(t *testing.T) {
	m := New()
	m.ValidationFailed(types.KindFormulaSyntax)
	m.ValidationFailed(types.KindFormulaSyntax)
	m.ValidationFailed(types.KindReference)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.validationFailures.WithLabelValues(types.KindFormulaSyntax.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationFailures.WithLabelValues(types.KindReference.String())))
}

func TestSetStoreBreakerState(t *testing.T) {
	m := New()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerState))

	m.SetStoreBreakerState(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.breakerState))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ValidationFailed(types.KindSchema)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "correlation_validation_failures_total"), body)
	assert.True(t, strings.Contains(body, "go_goroutines"), body)
}
