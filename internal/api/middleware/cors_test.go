package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(cfg CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func corsRequest(router *gin.Engine, method, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORSAllowAllOrigins(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowAllOrigins: true})

	w := corsRequest(router, http.MethodGet, "https://dashboard.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin: got %q, want *", got)
	}
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", w.Code)
	}
}

func TestCORSListedOriginReflected(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowedOrigins: []string{"https://dashboard.example.com"}})

	w := corsRequest(router, http.MethodGet, "https://dashboard.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example.com" {
		t.Errorf("allow-origin: got %q, want the origin reflected", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials: got %q, want true", got)
	}
}

func TestCORSUnlistedOriginGetsNoHeaders(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowedOrigins: []string{"https://dashboard.example.com"}})

	w := corsRequest(router, http.MethodGet, "https://evil.example.com")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin for unlisted origin: got %q, want none", got)
	}
	// The request itself still reaches the handler.
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, want 200", w.Code)
	}
}

func TestCORSPreflightEndsAtNoContent(t *testing.T) {
	router := newCORSRouter(CORSConfig{AllowedOrigins: []string{"https://dashboard.example.com"}})

	testCases := []struct {
		name   string
		origin string
	}{
		{name: "listed origin", origin: "https://dashboard.example.com"},
		{name: "unlisted origin", origin: "https://evil.example.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := corsRequest(router, http.MethodOptions, tc.origin)
			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status: got %d, want 204", w.Code)
			}
		})
	}
}
