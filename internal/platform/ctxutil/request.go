package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type requestDataKey struct{}

// RequestData is the authenticated caller attached by the auth middleware.
// Exactly one of ParticipantID or AdminID is set.
type RequestData struct {
	ParticipantID    uuid.UUID
	AccessCode       string
	SidePanelEnabled bool
	AdminID          uuid.UUID
	AdminEmail       string
}

func (rd *RequestData) IsParticipant() bool {
	return rd != nil && rd.ParticipantID != uuid.Nil
}

func (rd *RequestData) IsAdmin() bool {
	return rd != nil && rd.AdminID != uuid.Nil
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
