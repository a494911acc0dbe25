package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DevOrigins are allowed when no origins are configured.
var DevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// Origins normalizes a configured origin list, falling back to DevOrigins.
func Origins(configured []string) []string {
	var out []string
	for _, o := range configured {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return DevOrigins
	}
	return out
}

// OriginAllowed reports whether origin is in allowed. "*" allows everything.
func OriginAllowed(allowed []string, origin string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func CORS(origins []string) gin.HandlerFunc {
	allowed := Origins(origins)
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Request-Id", "Last-Event-ID"},
		ExposeHeaders:    []string{"X-Trace-Id", "X-Request-Id", "Content-Location", "Location"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowed) == 1 && allowed[0] == "*" {
		// Credentials cannot be combined with a literal wildcard.
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = allowed
	}
	return cors.New(cfg)
}
