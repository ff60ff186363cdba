package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	reached := false
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/config", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w, reached
}

func TestCORSExplicitOrigin(t *testing.T) {
	w, reached := serveCORS([]string{"http://localhost:3000/"}, http.MethodGet, "http://localhost:3000", false)
	if !reached {
		t.Fatal("Expected request to reach handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q, want true", got)
	}
}

func TestCORSWildcardNoCredentials(t *testing.T) {
	w, _ := serveCORS([]string{"*"}, http.MethodGet, "http://evil.test", false)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://evil.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Allow-Credentials = %q, want empty", got)
	}
}

func TestCORSUnknownOrigin(t *testing.T) {
	w, reached := serveCORS([]string{"http://a.test"}, http.MethodGet, "http://b.test", false)
	if !reached {
		t.Fatal("Expected request to reach handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q, want empty", got)
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	w, reached := serveCORS([]string{"http://a.test"}, http.MethodOptions, "http://a.test", true)
	if reached {
		t.Error("Preflight reached handler")
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != allowMethods {
		t.Errorf("Allow-Methods = %q", got)
	}
}
