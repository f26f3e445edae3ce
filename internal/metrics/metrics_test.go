package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLookup(t *testing.T) {
	m := New()

	m.ObserveLookup(ResultSuccess, 20*time.Millisecond)
	m.ObserveLookup(ResultSuccess, 30*time.Millisecond)
	m.ObserveLookup(ResultTransportError, time.Second)

	if got := testutil.ToFloat64(m.LookupsTotal.WithLabelValues(ResultSuccess)); got != 2 {
		t.Errorf("Expected 2 successful lookups, got %v", got)
	}
	if got := testutil.ToFloat64(m.LookupsTotal.WithLabelValues(ResultTransportError)); got != 1 {
		t.Errorf("Expected 1 transport error, got %v", got)
	}
	if got := testutil.ToFloat64(m.LookupsTotal.WithLabelValues(ResultFormatError)); got != 0 {
		t.Errorf("Expected 0 format errors, got %v", got)
	}
}

func TestObserveHTTP(t *testing.T) {
	m := New()

	m.ObserveHTTP("GET", "/json/{target}", http.StatusOK, 5*time.Millisecond)
	m.ObserveHTTP("GET", "/json/{target}", http.StatusBadGateway, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/json/{target}", "200")); got != 1 {
		t.Errorf("Expected 1 request with status 200, got %v", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/json/{target}", "502")); got != 1 {
		t.Errorf("Expected 1 request with status 502, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	// Must not panic
	m.ObserveLookup(ResultFail, time.Millisecond)
	m.ObserveHTTP("GET", "/health", http.StatusOK, time.Millisecond)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveLookup(ResultFail, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("metrics handler returned status %d", rr.Code)
	}

	body := rr.Body.String()
	for _, name := range []string{
		`geolocator_lookups_total{result="fail"} 1`,
		"geolocator_lookup_duration_seconds_count 1",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Each instance owns its registry, so creating two must not panic on duplicate registration
	a := New()
	b := New()

	a.ObserveLookup(ResultSuccess, time.Millisecond)

	if got := testutil.ToFloat64(b.LookupsTotal.WithLabelValues(ResultSuccess)); got != 0 {
		t.Errorf("registries should be independent, got %v", got)
	}
}
