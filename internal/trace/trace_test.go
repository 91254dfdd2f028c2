package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateTraceID(t *testing.T) {
	id := generateTraceID()
	if len(id) != 32 {
		t.Errorf("trace ID should be 32 chars, got %d", len(id))
	}
}

func TestGenerateSpanID(t *testing.T) {
	id := generateSpanID()
	if len(id) != 16 {
		t.Errorf("span ID should be 16 chars, got %d", len(id))
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should have new span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child's parent should be parent's span ID")
	}
}

func TestContextPropagation(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	extracted, ok := FromContext(ctx)
	if !ok {
		t.Fatal("should extract trace context")
	}
	if extracted.TraceID != tc.TraceID {
		t.Error("extracted trace ID mismatch")
	}
}

func TestEnsureContext(t *testing.T) {
	ctx, tc := EnsureContext(context.Background())
	if tc.TraceID == "" {
		t.Error("EnsureContext should create a trace ID")
	}

	ctx2, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("EnsureContext should reuse existing context")
	}
	if ctx2 != ctx {
		t.Error("EnsureContext should return same context when present")
	}
}

func TestSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "recognize_pass")
	span.SetAttr("words", 12)

	if span.Name != "recognize_pass" {
		t.Errorf("span name = %q", span.Name)
	}
	if span.Duration() != 0 {
		t.Error("unfinished span should report zero duration")
	}

	time.Sleep(time.Millisecond)
	span.End()
	if span.Duration() <= 0 {
		t.Error("ended span should have positive duration")
	}

	// Child spans inherit the trace.
	_, child := StartSpan(ctx, "ocr")
	if child.Ctx.TraceID != span.Ctx.TraceID {
		t.Error("child span should share trace ID")
	}
	if child.Ctx.ParentSpanID != span.Ctx.SpanID {
		t.Error("child span parent should be outer span")
	}
}

func TestMiddleware(t *testing.T) {
	var got Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/snapshot", http.NoBody)
	req.Header.Set(TraceIDKey, "abc123")
	req.Header.Set(SpanIDKey, "def456")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "abc123" {
		t.Errorf("TraceID = %q, want propagated header", got.TraceID)
	}
	if got.ParentSpanID != "def456" {
		t.Errorf("ParentSpanID = %q, want caller span", got.ParentSpanID)
	}

	// Without headers a fresh trace is minted.
	req = httptest.NewRequest("GET", "/api/snapshot", http.NoBody)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got.TraceID == "" {
		t.Error("middleware should mint a trace ID when none supplied")
	}
}
