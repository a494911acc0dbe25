package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORSReflectsConfiguredOrigins(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		configured []string
		origin     string
		allowed    bool
	}{
		{name: "dev default", origin: "http://localhost:5173", allowed: true},
		{name: "configured", configured: []string{"https://study.example.org/"}, origin: "https://study.example.org", allowed: true},
		{name: "dev origin not configured", configured: []string{"https://study.example.org"}, origin: "http://localhost:5173"},
		{name: "wildcard", configured: []string{"*"}, origin: "https://anything.example", allowed: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := gin.New()
			r.Use(CORS(tc.configured))
			r.OPTIONS("/api/study/session/start", func(c *gin.Context) {
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodOptions, "/api/study/session/start", nil)
			req.Header.Set("Origin", tc.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			got := rec.Header().Get("Access-Control-Allow-Origin")
			if tc.allowed && got != tc.origin {
				t.Fatalf("allow-origin: want=%q got=%q", tc.origin, got)
			}
			if !tc.allowed && got != "" {
				t.Fatalf("allow-origin: want none got=%q", got)
			}
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := Origins([]string{" https://a.example/ ", ""})
	if !OriginAllowed(allowed, "https://a.example") {
		t.Fatalf("expected https://a.example to be allowed")
	}
	if OriginAllowed(allowed, "https://b.example") {
		t.Fatalf("expected https://b.example to be rejected")
	}
	if len(Origins(nil)) != len(DevOrigins) {
		t.Fatalf("empty config should fall back to dev origins")
	}
}
