package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
	}
	for in, want := range cases {
		got := parseLevel(in)
		if got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestComponentLoggerAddsContextIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	Init(LogConfig{Level: "debug", Output: &buf})

	ctx := WithUserID(WithRequestID(context.Background(), "req-1"), "user-9")
	Component("chat").Info(ctx, "turn done", "tools", 2)

	out := buf.String()
	for _, want := range []string{"component=chat", "request_id=req-1", "user_id=user-9", "tools=2", "turn done"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
}

func TestComponentLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	Init(LogConfig{Level: "warn", Output: &buf})

	Component("x").Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below level, got %q", buf.String())
	}
}

func TestCompactStack(t *testing.T) {
	long := strings.Repeat("frame\n", 40)
	got := compactStack(long)
	if strings.Count(got, "\n") > 16 {
		t.Fatalf("expected compact stack, got %d lines", strings.Count(got, "\n"))
	}
}

func TestRecoverMiddlewareReturnsJSON500(t *testing.T) {
	h := RecoverMiddleware("test", http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "An error occurred during the request") {
		t.Fatalf("body = %q", w.Body.String())
	}
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Fatal("expected request id in context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Result().Header.Get(RequestIDHeader) == "" {
		t.Fatal("expected X-Request-ID response header")
	}
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromContext(r.Context()); got != "abc" {
			t.Fatalf("request id = %q, want abc", got)
		}
	}))
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), r)
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown, err := InitOTel(context.Background(), OTelConfig{})
	if err != nil {
		t.Fatalf("InitOTel: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitOTelRequiresEndpoint(t *testing.T) {
	if _, err := InitOTel(context.Background(), OTelConfig{Enabled: true}); err == nil {
		t.Fatal("expected error without endpoint")
	}
}

func TestEndSpanRecordsError(t *testing.T) {
	_, span := StartSpan(context.Background(), "test")
	EndSpan(span, errors.New("x"))
	if span.IsRecording() {
		t.Fatal("span should be ended")
	}
}
