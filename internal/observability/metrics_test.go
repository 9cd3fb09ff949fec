package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/aegis-id/aegis/internal/platform/cache"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "aegis_http_requests_total") {
		t.Fatalf("expected body to contain aegis_http_requests_total, got: %s", body)
	}
	if !strings.Contains(body, `route="/ping"`) {
		t.Fatalf("expected request metric labelled with route, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsStatusCode(t *testing.T) {
	metrics := NewMetrics()

	router := chi.NewRouter()
	router.Use(metrics.Middleware)
	router.Get("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rr.Body.String(), `code="404"`) {
		t.Fatalf("expected 404 to be recorded, got: %s", rr.Body.String())
	}
}

func TestRegisterCacheStatsExportsCounters(t *testing.T) {
	metrics := NewMetrics()
	store := cache.NewMemory[[]string]()
	defer store.Close()

	metrics.RegisterCacheStats(store, nil)

	ctx := context.Background()
	if err := store.Set(ctx, "k", []string{"v"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := store.Get(ctx, "k"); err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if _, ok, err := store.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("get absent: ok=%v err=%v", ok, err)
	}

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rr.Body.String()
	for _, want := range []string{
		`aegis_cache_entries{backend="memory"} 1`,
		`aegis_cache_hits_total{backend="memory"} 1`,
		`aegis_cache_misses_total{backend="memory"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output, got: %s", want, body)
		}
	}
}
