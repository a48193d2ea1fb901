package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestHTTPServerMetricsRecordsAnswerAndRequests(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ask", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/unknown/123", nil))
	m.RecordAnswer("api", "SUMMARY", "answered", 6, 150*time.Millisecond)
	m.RecordRejected("api", "rate_limited")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`rpps_http_requests_total{method="POST",path="/ask",service="api",status="418"} 1`,
		`path="other"`,
		`rpps_answer_routes_total{outcome="answered",route="SUMMARY",service="api"} 1`,
		`rpps_answer_selected_documents_sum{route="SUMMARY",service="api"} 6`,
		`rpps_http_rejected_total{reason="rate_limited",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestWorkerMetricsCountsFailures(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartRequest()
	m.FinishRequest("worker", "ANALYTICAL", "failed", 0, time.Second)

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `rpps_worker_ask_requests_total{service="worker",status="error"} 1`) {
		t.Fatalf("expected error count in metrics output:\n%s", body)
	}
	if !strings.Contains(body, `rpps_worker_ask_in_flight{service="worker"} 0`) {
		t.Fatalf("expected in-flight gauge back to zero:\n%s", body)
	}
}
