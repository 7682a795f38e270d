package metric

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.GraphRequest("ads", 200)
	m.AdProcessed("success")
	m.Download("ok")
	m.Scrape("miss")
	m.CircuitTripped()
	m.ImportFinished("ok", time.Second)
}

func TestCountersExposed(t *testing.T) {
	m := New()
	m.AdProcessed("success")
	m.AdProcessed("success")
	m.AdProcessed("error")

	if got := testutil.ToFloat64(m.AdsProcessed.WithLabelValues("success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `adimport_ads_processed_total{status="error"} 1`) {
		t.Errorf("metrics output missing error counter:\n%s", rec.Body.String())
	}
}
