package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider() (*Provider, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewProvider(tp, "test"), rec
}

func TestInitTracerDisabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "convertd", Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Tracer() == nil {
		t.Error("Expected a tracer even when disabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Unexpected shutdown error: %v", err)
	}
}

func TestHTTPMiddlewareRecordsRoute(t *testing.T) {
	p, rec := newRecordingProvider()

	router := mux.NewRouter()
	router.Use(HTTPMiddleware(p))
	router.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/items/42", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "GET /api/items/{id}" {
		t.Errorf("Expected route template in span name, got %s", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("Expected error status for 502, got %v", spans[0].Status().Code)
	}
}

func TestResponseWriterUnwrapsForFlush(t *testing.T) {
	rr := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rr, statusCode: http.StatusOK}

	if err := http.NewResponseController(rw).Flush(); err != nil {
		t.Errorf("Expected flush through wrapper, got %v", err)
	}
	if !rr.Flushed {
		t.Error("Expected underlying recorder to be flushed")
	}
}

func TestSetError(t *testing.T) {
	p, rec := newRecordingProvider()
	ctx, span := p.StartSpan(context.Background(), "op")
	SetError(ctx, errors.New("boom"))
	span.End()

	if got := rec.Ended()[0].Status().Code; got != codes.Error {
		t.Errorf("Expected error status, got %v", got)
	}
}
