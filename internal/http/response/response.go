package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/apierr"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

// ErrorEnvelope is the body of every failed request. RedirectTo is set when
// the client should navigate instead of showing an error.
type ErrorEnvelope struct {
	OK         bool   `json:"ok"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RedirectTo string `json:"redirectTo,omitempty"`
}

// OK writes {ok:true} merged with payload.
func OK(c *gin.Context, payload gin.H) {
	Status(c, http.StatusOK, payload)
}

func Status(c *gin.Context, status int, payload gin.H) {
	body := gin.H{"ok": true}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

// Error maps err onto the envelope. Errors without an apierr.Error are
// logged and hidden behind a generic 500.
func Error(c *gin.Context, log *logger.Logger, err error) {
	if ae, ok := apierr.As(err); ok {
		if ae.Status >= http.StatusInternalServerError && log != nil {
			log.Error("request failed", "path", c.FullPath(), "code", ae.Code, "error", ae.Err)
		}
		msg := ae.Error()
		if ae.Status >= http.StatusInternalServerError {
			msg = "internal error"
		}
		c.JSON(ae.Status, ErrorEnvelope{Error: msg, Code: ae.Code, RedirectTo: ae.RedirectTo})
		return
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads the body.
		c.Status(499)
		return
	}
	if log != nil {
		log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(http.StatusInternalServerError, ErrorEnvelope{Error: "internal error", Code: "internal_error"})
}

// Abort stops the chain with an error envelope.
func Abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: msg, Code: code})
}

// BadBody answers malformed request bodies.
func BadBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorEnvelope{Error: "invalid request body: " + err.Error(), Code: "invalid_request"})
}
