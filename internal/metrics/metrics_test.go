package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

func TestNew_IndependentRegistries(t *testing.T) {
	a := New("shreya")
	b := New("shreya")

	a.ProviderFailures.Inc()

	if text := scrape(t, a); !strings.Contains(text, "shreya_provider_failures_total 1") {
		t.Errorf("Expected 1 provider failure in first instance:\n%s", text)
	}
	if text := scrape(t, b); !strings.Contains(text, "shreya_provider_failures_total 0") {
		t.Errorf("Second instance should be independent:\n%s", text)
	}
}

func TestHandler(t *testing.T) {
	m := New("shreya")
	m.Blocked.WithLabelValues("illegal").Inc()
	m.Turns.WithLabelValues("guest", "matrix").Inc()
	m.ObserveCompletion(300 * time.Millisecond)

	text := scrape(t, m)
	for _, want := range []string{
		`shreya_blocked_messages_total{class="illegal"} 1`,
		`shreya_turns_total{role="guest",source="matrix"} 1`,
		"shreya_completion_latency_ms_count 1",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
