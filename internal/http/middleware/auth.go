package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/http/response"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/ctxutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/sessiontoken"
)

// TokenVerifier checks both token audiences.
type TokenVerifier interface {
	VerifyParticipant(token string) (*sessiontoken.ParticipantClaims, error)
	VerifyAdmin(token string) (*sessiontoken.AdminClaims, error)
}

// ActivityToucher refreshes a participant's lastActiveAt.
type ActivityToucher interface {
	Touch(ctx context.Context, participantID uuid.UUID) error
}

type AuthMiddleware struct {
	log    *logger.Logger
	tokens TokenVerifier
	touch  ActivityToucher
}

func NewAuthMiddleware(log *logger.Logger, tokens TokenVerifier, touch ActivityToucher) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), tokens: tokens, touch: touch}
}

// RequireParticipant accepts study session tokens and refreshes the
// participant's activity timestamp.
func (am *AuthMiddleware) RequireParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		rd, ok := am.participant(token)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "invalid_token", "invalid or expired session")
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), rd)
		c.Request = c.Request.WithContext(ctx)
		am.touchActivity(ctx, rd.ParticipantID)
		c.Next()
	}
}

func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		rd, ok := am.admin(token)
		if !ok {
			response.Abort(c, http.StatusUnauthorized, "invalid_token", "invalid or expired admin session")
			return
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}

// RequireParticipantOrAdmin accepts either token. Ownership rules are left to
// the service.
func (am *AuthMiddleware) RequireParticipantOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if rd, ok := am.participant(token); ok {
			ctx := ctxutil.WithRequestData(c.Request.Context(), rd)
			c.Request = c.Request.WithContext(ctx)
			am.touchActivity(ctx, rd.ParticipantID)
			c.Next()
			return
		}
		if rd, ok := am.admin(token); ok {
			c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
			c.Next()
			return
		}
		response.Abort(c, http.StatusUnauthorized, "invalid_token", "invalid or expired session")
	}
}

func (am *AuthMiddleware) participant(token string) (*ctxutil.RequestData, bool) {
	claims, err := am.tokens.VerifyParticipant(token)
	if err != nil {
		return nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, false
	}
	return &ctxutil.RequestData{
		ParticipantID:    id,
		AccessCode:       claims.AccessCode,
		SidePanelEnabled: claims.SidePanelEnabled,
	}, true
}

func (am *AuthMiddleware) admin(token string) (*ctxutil.RequestData, bool) {
	claims, err := am.tokens.VerifyAdmin(token)
	if err != nil {
		return nil, false
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, false
	}
	return &ctxutil.RequestData{AdminID: id, AdminEmail: claims.Email}, true
}

func (am *AuthMiddleware) touchActivity(ctx context.Context, id uuid.UUID) {
	if am.touch == nil {
		return
	}
	if err := am.touch.Touch(ctx, id); err != nil {
		am.log.Warn("touch last active failed", "participant_id", id.String(), "error", err)
	}
}

// extractToken reads the bearer header, falling back to ?token= for
// EventSource clients that cannot set headers.
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}
