package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/guias-cli/internal/metrics"
)

func TestOpsRouter_Health(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newOpsRouter(reg, func() healthStatus {
		return healthStatus{Status: "ok", Entities: 3, Pending: 1}
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var got healthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, healthStatus{Status: "ok", Entities: 3, Pending: 1}, got)
}

func TestOpsRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncrementDocument("stored", "darf")

	h := newOpsRouter(reg, func() healthStatus { return healthStatus{Status: "ok"} })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `guias_documents_total{doc_type="darf",state="stored"} 1`)
}

func TestOpsRouter_NotFound(t *testing.T) {
	h := newOpsRouter(prometheus.NewRegistry(), func() healthStatus { return healthStatus{} })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeOps_ShutsDownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveOps(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveOps did not stop")
	}
}
