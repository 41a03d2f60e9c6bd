package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"judgegate/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

func newCORSRouter(cfg middleware.CORSConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CORSMiddleware(cfg))
	router.GET("/runs", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSMiddleware(t *testing.T) {
	cfg := middleware.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"https://judge.example.com"},
		AllowCredentials: true,
		MaxAgeSeconds:    600,
	}

	tests := []struct {
		name       string
		cfg        middleware.CORSConfig
		method     string
		origin     string
		wantStatus int
		wantOrigin string
	}{
		{"allowed origin", cfg, http.MethodGet, "https://JUDGE.example.com", http.StatusOK, "https://JUDGE.example.com"},
		{"allowed preflight", cfg, http.MethodOptions, "https://judge.example.com", http.StatusNoContent, "https://judge.example.com"},
		{"foreign origin passes undecorated", cfg, http.MethodGet, "https://evil.example.com", http.StatusOK, ""},
		{"foreign preflight refused", cfg, http.MethodOptions, "https://evil.example.com", http.StatusForbidden, ""},
		{"no origin", cfg, http.MethodGet, "", http.StatusOK, ""},
		{"wildcard", middleware.CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}}, http.MethodGet, "https://a.example.com", http.StatusOK, "*"},
		{"disabled", middleware.CORSConfig{AllowedOrigins: []string{"*"}}, http.MethodGet, "https://a.example.com", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/runs", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			newCORSRouter(tt.cfg).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestCORSMiddlewareHeaders(t *testing.T) {
	router := newCORSRouter(middleware.CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"https://judge.example.com"},
		AllowCredentials: true,
		MaxAgeSeconds:    600,
	})
	req := httptest.NewRequest(http.MethodOptions, "/runs", nil)
	req.Header.Set("Origin", "https://judge.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	want := map[string]string{
		"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
		"Access-Control-Allow-Credentials": "true",
		"Access-Control-Max-Age":           "600",
		"Vary":                             "Origin",
	}
	for name, value := range want {
		if got := w.Header().Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
}
