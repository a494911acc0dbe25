package study

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type ChatThreadRepo interface {
	// CreateIfAbsent inserts row unless a thread with the same agent thread id
	// exists. It reports whether this call inserted the row.
	CreateIfAbsent(dbc dbctx.Context, row *types.ChatThread) (bool, error)
	GetByAgentThreadID(dbc dbctx.Context, agentThreadID string) (*types.ChatThread, error)
	ListBySession(dbc dbctx.Context, taskSessionID uuid.UUID) ([]*types.ChatThread, error)
	CountBySession(dbc dbctx.Context, taskSessionID uuid.UUID) (int64, error)
	// CloseActive closes every ACTIVE thread of the session except keepID.
	CloseActive(dbc dbctx.Context, taskSessionID uuid.UUID, keepID uuid.UUID, reason string, at time.Time) (int64, error)
	// CloseIfActive closes one thread. It reports false when it was already closed.
	CloseIfActive(dbc dbctx.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	Reactivate(dbc dbctx.Context, id uuid.UUID) error
}

type chatThreadRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatThreadRepo(db *gorm.DB, log *logger.Logger) ChatThreadRepo {
	return &chatThreadRepo{db: db, log: log.With("repo", "ChatThreadRepo")}
}

func (r *chatThreadRepo) CreateIfAbsent(dbc dbctx.Context, row *types.ChatThread) (bool, error) {
	if row == nil || strings.TrimSpace(row.AgentThreadID) == "" {
		return false, fmt.Errorf("missing agent thread id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent_thread_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *chatThreadRepo) GetByAgentThreadID(dbc dbctx.Context, agentThreadID string) (*types.ChatThread, error) {
	id := strings.TrimSpace(agentThreadID)
	if id == "" {
		return nil, fmt.Errorf("missing agent thread id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ChatThread
	if err := txx.WithContext(dbc.Context()).
		Where("agent_thread_id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *chatThreadRepo) ListBySession(dbc dbctx.Context, taskSessionID uuid.UUID) ([]*types.ChatThread, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ChatThread
	if err := txx.WithContext(dbc.Context()).
		Where("task_session_id = ?", taskSessionID).
		Order("restart_index ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chatThreadRepo) CountBySession(dbc dbctx.Context, taskSessionID uuid.UUID) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	if err := txx.WithContext(dbc.Context()).
		Model(&types.ChatThread{}).
		Where("task_session_id = ?", taskSessionID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *chatThreadRepo) CloseActive(dbc dbctx.Context, taskSessionID uuid.UUID, keepID uuid.UUID, reason string, at time.Time) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Context()).
		Model(&types.ChatThread{}).
		Where("task_session_id = ? AND status = ?", taskSessionID, types.ThreadStatusActive)
	if keepID != uuid.Nil {
		q = q.Where("id <> ?", keepID)
	}
	res := q.Updates(map[string]interface{}{
		"status":       types.ThreadStatusClosed,
		"close_reason": reason,
		"closed_at":    at.UTC(),
		"updated_at":   time.Now().UTC(),
	})
	return res.RowsAffected, res.Error
}

func (r *chatThreadRepo) CloseIfActive(dbc dbctx.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Context()).
		Model(&types.ChatThread{}).
		Where("id = ? AND status = ?", id, types.ThreadStatusActive).
		Updates(map[string]interface{}{
			"status":       types.ThreadStatusClosed,
			"close_reason": reason,
			"closed_at":    at.UTC(),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *chatThreadRepo) Reactivate(dbc dbctx.Context, id uuid.UUID) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Model(&types.ChatThread{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       types.ThreadStatusActive,
			"close_reason": nil,
			"closed_at":    nil,
			"updated_at":   time.Now().UTC(),
		}).Error
}
