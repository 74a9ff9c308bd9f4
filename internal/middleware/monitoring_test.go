package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus "github.com/prometheus/client_model/go"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric io_prometheus.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatal(err)
	}
	return metric.GetCounter().GetValue()
}

func TestMonitoring_RecordsSuccessMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := Monitoring(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	counter, err := m.RequestsTotal.GetMetricWithLabelValues("GET", "/health", "200")
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(t, counter); got != 1 {
		t.Errorf("requests_total = %f, want 1", got)
	}
}

func TestMonitoring_RecordsErrors(t *testing.T) {
	m, _ := newTestMetrics(t)

	handler := Monitoring(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/neo-analyze", nil))

	counter, err := m.ErrorsTotal.GetMetricWithLabelValues("POST", "/api/neo-analyze", "502")
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(t, counter); got != 1 {
		t.Errorf("errors_total = %f, want 1", got)
	}
}

func TestObserveQuestion(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveQuestion(1, false, 0)
	m.ObserveQuestion(3, false, 4)
	m.ObserveQuestion(3, true, 0)

	counter, err := m.QuestionsTotal.GetMetricWithLabelValues("3", "true")
	if err != nil {
		t.Fatal(err)
	}
	if got := counterValue(t, counter); got != 1 {
		t.Errorf("questions_total{3,true} = %f, want 1", got)
	}

	var metric io_prometheus.Metric
	m.AgentTurns.(prometheus.Metric).Write(&metric)
	if got := metric.GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("agent turns samples = %d, want 1 (tier 1 and cached runs use no turns)", got)
	}
}

func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RequestsTotal.WithLabelValues("GET", "/health", "200").Inc()
	m.ObserveQuestion(2, false, 0)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{"http_requests_total", "neo_questions_total"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/health", "/health"},
		{"/api/neo-analyze", "/api/neo-analyze"},
		{"/api/researcher/550e8400-e29b-41d4-a716-446655440000", "/api/researcher/:id"},
		{"/api/researcher/12345", "/api/researcher/:id"},
		{"/", "/"},
		{"", "/"},
	}
	for _, tc := range tests {
		if got := sanitizePath(tc.input); got != tc.want {
			t.Errorf("sanitizePath(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}
