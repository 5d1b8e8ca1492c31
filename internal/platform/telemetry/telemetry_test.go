package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTelemetryConfig_Defaults(t *testing.T) {
	cfg := TelemetryConfig{SampleRate: 7}
	cfg.applyDefaults()

	if cfg.ServiceName != "whispers-server" {
		t.Errorf("expected default ServiceName, got %q", cfg.ServiceName)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected default Environment, got %q", cfg.Environment)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected out-of-range SampleRate to reset to 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), TelemetryConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown error: %v", err)
	}
}

func TestMetricsMiddleware_CountsByRoute(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.GET("/api/v1/events/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/v1/events/:id", "200"))
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/abc", nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/v1/events/:id", "200"))
	if after-before != 2 {
		t.Errorf("expected 2 requests counted, got %v", after-before)
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(MetricsMiddleware())
	e.DELETE("/api/v1/events/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "no")
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodDelete, "/api/v1/events/:id", "403"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/v1/events/x", nil))
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodDelete, "/api/v1/events/:id", "403"))
	if after-before != 1 {
		t.Errorf("expected 403 to be counted, got %v", after-before)
	}
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	e := echo.New()
	e.Use(TracingMiddleware("test"))
	e.GET("/health", func(c echo.Context) error {
		if c.Request().Context() == nil {
			t.Error("expected request context")
		}
		return c.String(http.StatusOK, "ok")
	})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_ExposesDomainMetrics(t *testing.T) {
	ObserveRecompute(10 * time.Millisecond)
	IncValidationFailure("event", "validation")
	IncOutbox("delivered")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{"event_recompute_duration_seconds", "validation_failures_total", "outbox_messages_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in metrics output", name)
		}
	}
}
