package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
)

// Pinger is satisfied by *sql.DB and the gorm pool wrapper.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type HealthHandler struct {
	db Pinger
}

func NewHealthHandler(db Pinger) *HealthHandler { return &HealthHandler{db: db} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			response.Abort(c, http.StatusServiceUnavailable, "db_unavailable", "database unreachable")
			return
		}
	}
	response.OK(c, gin.H{"status": "ok"})
}
