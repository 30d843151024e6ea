package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"tabledash/internal/domain"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewWithRegistry(prometheus.NewRegistry())
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func TestObserveStoreOp(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveStoreOp("find_all", 5*time.Millisecond, nil)
	c.ObserveStoreOp("find_all", 5*time.Millisecond, domain.NewStoreError("find_all", domain.Handle{}, domain.ErrConnection, errors.New("down")))
	c.ObserveStoreOp("replace_all", time.Millisecond, &domain.PartialSaveError{Err: domain.ErrValidation})

	if v := getCounterValue(c.storeErrors.WithLabelValues("find_all", "connection")); v != 1 {
		t.Errorf("expected 1 connection error, got %v", v)
	}
	if v := getCounterValue(c.storeErrors.WithLabelValues("replace_all", "partial_save")); v != 1 {
		t.Errorf("expected 1 partial save error, got %v", v)
	}

	m := &dto.Metric{}
	c.storeDuration.WithLabelValues("find_all").(prometheus.Histogram).Write(m)
	if got := m.GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("expected 2 samples, got %d", got)
	}
}

func TestSavesAndSessions(t *testing.T) {
	c := newTestCollector(t)

	c.SaveFinished(domain.SaveSuccess)
	c.SaveFinished(domain.SaveSuccess)
	c.SaveFinished(domain.SavePartial)
	c.SessionsOpen(3)

	if v := getCounterValue(c.saves.WithLabelValues("success")); v != 2 {
		t.Errorf("expected 2 successful saves, got %v", v)
	}
	if v := getCounterValue(c.saves.WithLabelValues("partial")); v != 1 {
		t.Errorf("expected 1 partial save, got %v", v)
	}
	if v := getGaugeValue(c.sessionsOpen); v != 3 {
		t.Errorf("expected 3 open sessions, got %v", v)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := newTestCollector(t)
	c.SessionsOpen(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(string(body), "tabledash_sessions_open 1") {
		t.Errorf("metrics output missing sessions gauge:\n%s", body)
	}
}

func TestNewIsIndependent(t *testing.T) {
	// each collector owns its registry, so two can coexist
	New()
	New()
}
