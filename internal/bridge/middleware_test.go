package bridge

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		path     string
		header   string
		wantCall bool
		wantCode int
	}{
		{"no key configured", "", "/credentials", "", false, http.StatusUnauthorized},
		{"no key configured empty bearer", "", "/credentials", "Bearer ", false, http.StatusUnauthorized},
		{"no key configured health", "", "/health", "", true, http.StatusOK},
		{"shutdown needs token", "secret", "/shutdown", "", false, http.StatusUnauthorized},
		{"valid token", "secret", "/credentials", "Bearer secret", true, http.StatusOK},
		{"wrong token", "secret", "/credentials", "Bearer nope", false, http.StatusUnauthorized},
		{"missing header", "secret", "/credentials", "", false, http.StatusUnauthorized},
		{"not bearer", "secret", "/credentials", "Basic secret", false, http.StatusUnauthorized},
		{"health bypass", "secret", "/health", "", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := authMiddleware(okHandler(&called), tt.key, testLogger())
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if called != tt.wantCall {
				t.Errorf("inner called = %v, want %v", called, tt.wantCall)
			}
			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
		})
	}
}

func TestHostMiddleware(t *testing.T) {
	tests := []struct {
		host string
		bind string
		want int
	}{
		{"127.0.0.1:9400", "127.0.0.1", http.StatusOK},
		{"localhost:9400", "127.0.0.1", http.StatusOK},
		{"LOCALHOST", "127.0.0.1", http.StatusOK},
		{"[::1]:9400", "127.0.0.1", http.StatusOK},
		{"192.168.1.20:9400", "192.168.1.20", http.StatusOK},
		{"example.com", "127.0.0.1", http.StatusForbidden},
		{"attacker.example:9400", "0.0.0.0", http.StatusForbidden},
		{"0.0.0.0:9400", "0.0.0.0", http.StatusForbidden},
	}
	for _, tt := range tests {
		called := false
		req := httptest.NewRequest("GET", "/credentials", nil)
		req.Host = tt.host
		rr := httptest.NewRecorder()
		hostMiddleware(okHandler(&called), tt.bind, testLogger()).ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Errorf("host %q bind %q: status = %d, want %d", tt.host, tt.bind, rr.Code, tt.want)
		}
		if called != (tt.want == http.StatusOK) {
			t.Errorf("host %q: inner called = %v", tt.host, called)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})
	rr := httptest.NewRecorder()
	recoveryMiddleware(inner, testLogger()).ServeHTTP(rr, httptest.NewRequest("GET", "/credentials", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestCORS(t *testing.T) {
	tests := []struct {
		origin   string
		patterns []string
		want     string
	}{
		{"http://localhost:5173", []string{"http://localhost:*"}, "http://localhost:5173"},
		{"tauri://localhost", []string{"tauri://localhost"}, "tauri://localhost"},
		{"https://evil.com", []string{"http://localhost:*"}, ""},
	}
	for _, tt := range tests {
		called := false
		req := httptest.NewRequest("GET", "/credentials", nil)
		req.Header.Set("Origin", tt.origin)
		rr := httptest.NewRecorder()
		corsMiddleware(okHandler(&called), tt.patterns).ServeHTTP(rr, req)

		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %q: Allow-Origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	called := false
	req := httptest.NewRequest("OPTIONS", "/credentials/openai", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	corsMiddleware(okHandler(&called), []string{"http://localhost:*"}).ServeHTTP(rr, req)

	if called {
		t.Error("inner handler should not be called for OPTIONS preflight")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		origin   string
		patterns []string
		want     bool
	}{
		{"http://localhost:3000", []string{"http://localhost:*"}, true},
		{"https://example.com", []string{"https://example.com"}, true},
		{"https://evil.com", []string{"https://example.com"}, false},
		{"http://other:3000", []string{"http://localhost:*"}, false},
		{"http://localhost:3000", nil, false},
	}
	for _, tt := range tests {
		if got := matchOrigin(tt.origin, tt.patterns); got != tt.want {
			t.Errorf("matchOrigin(%q, %v) = %v, want %v", tt.origin, tt.patterns, got, tt.want)
		}
	}
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	var buf lockedBuffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	req := httptest.NewRequest("POST", "/credentials/openai", nil)
	loggingMiddleware(inner, logger).ServeHTTP(httptest.NewRecorder(), req)

	if out := buf.String(); !contains(out, "status=418") || !contains(out, "path=/credentials/openai") {
		t.Errorf("log line = %q", out)
	}
}
