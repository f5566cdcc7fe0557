package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("lock", nil)
	m.ObserveOperation("lock", nil)
	m.ObserveOperation("release", errors.New("boom"))
	m.TransferFailed("release")
	m.SetCustody(uint256.NewInt(42))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("lock", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("release", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transferFailures.WithLabelValues("release")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.custody))

	m.SetChainValid(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chainValid))
	m.SetChainValid(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.chainValid))

	m.SetPendingPayouts("ledger", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.pendingPayouts.WithLabelValues("ledger")))

	m.ObserveJob("audit-chain", nil)
	m.ObserveJob("audit-chain", errors.New("db down"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("audit-chain", "error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("lock", nil)
	m.SetCustody(uint256.NewInt(1))
	m.TransferFailed("withdraw")
	m.EventFailed("redis")
	m.SetChainValid(true)
	m.SetPendingPayouts("relay", 1)
	m.ObserveJob("x", nil)

	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestMetrics_HandlerExposesRouteTemplate(t *testing.T) {
	m := New(prometheus.NewRegistry())

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/locks/{remote}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/locks/0xabcd", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/locks/{remote}"`))
	assert.True(t, strings.Contains(body, `status="418"`))
}
