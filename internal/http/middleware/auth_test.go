package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/ctxutil"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/sessiontoken"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type touchRecorder struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (r *touchRecorder) Touch(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func newIssuer(t *testing.T) *sessiontoken.Issuer {
	t.Helper()
	iss, err := sessiontoken.New(sessiontoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	return iss
}

// echoCaller writes which identity the middleware attached.
func echoCaller(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	switch {
	case rd.IsParticipant():
		c.String(http.StatusOK, "participant:"+rd.AccessCode)
	case rd.IsAdmin():
		c.String(http.StatusOK, "admin:"+rd.AdminEmail)
	default:
		c.String(http.StatusOK, "none")
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := newIssuer(t)
	touch := &touchRecorder{}
	am := NewAuthMiddleware(logger.Nop(), iss, touch)

	participantID := uuid.New()
	pTok, _, err := iss.IssueParticipant(participantID, "P001", true)
	if err != nil {
		t.Fatalf("issue participant: %v", err)
	}
	aTok, _, err := iss.IssueAdmin(uuid.New(), "lead@example.org")
	if err != nil {
		t.Fatalf("issue admin: %v", err)
	}

	r := gin.New()
	r.GET("/p", am.RequireParticipant(), echoCaller)
	r.GET("/a", am.RequireAdmin(), echoCaller)
	r.GET("/either", am.RequireParticipantOrAdmin(), echoCaller)

	cases := []struct {
		name   string
		path   string
		header string
		query  string
		status int
		body   string
	}{
		{name: "participant bearer", path: "/p", header: "Bearer " + pTok, status: 200, body: "participant:P001"},
		{name: "participant query token", path: "/p", query: pTok, status: 200, body: "participant:P001"},
		{name: "missing token", path: "/p", status: 401},
		{name: "admin token on participant route", path: "/p", header: "Bearer " + aTok, status: 401},
		{name: "garbage", path: "/p", header: "Bearer nope", status: 401},
		{name: "admin", path: "/a", header: "Bearer " + aTok, status: 200, body: "admin:lead@example.org"},
		{name: "participant on admin route", path: "/a", header: "Bearer " + pTok, status: 401},
		{name: "either participant", path: "/either", header: "Bearer " + pTok, status: 200, body: "participant:P001"},
		{name: "either admin", path: "/either", header: "bearer " + aTok, status: 200, body: "admin:lead@example.org"},
		{name: "either garbage", path: "/either", header: "Bearer x.y.z", status: 401},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := tc.path
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d body=%s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Fatalf("body: want=%q got=%q", tc.body, rec.Body.String())
			}
		})
	}

	touch.mu.Lock()
	defer touch.mu.Unlock()
	if len(touch.ids) != 3 {
		t.Fatalf("touches: want=3 got=%d", len(touch.ids))
	}
	for _, id := range touch.ids {
		if id != participantID {
			t.Fatalf("touched id: want=%s got=%s", participantID, id)
		}
	}
}

func TestExpiredParticipantTokenIsRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := newIssuer(t)
	past := iss.WithClock(func() time.Time { return time.Now().Add(-3 * time.Hour) })
	tok, _, err := past.IssueParticipant(uuid.New(), "P002", false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.GET("/p", NewAuthMiddleware(logger.Nop(), iss, nil).RequireParticipant(), echoCaller)
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=401 got=%d", rec.Code)
	}
}
