package agent

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type MessageRepo interface {
	ListByThread(dbc dbctx.Context, agentThreadID string) ([]*types.AgentMessage, error)
	// MaxSeq is the highest seq in the thread, or 0 for an empty thread.
	MaxSeq(dbc dbctx.Context, agentThreadID string) (int64, error)
	Create(dbc dbctx.Context, rows []*types.AgentMessage) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "AgentMessageRepo")}
}

func (r *messageRepo) ListByThread(dbc dbctx.Context, agentThreadID string) ([]*types.AgentMessage, error) {
	id := strings.TrimSpace(agentThreadID)
	if id == "" {
		return nil, fmt.Errorf("missing agent thread id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.AgentMessage
	if err := txx.WithContext(dbc.Context()).
		Where("agent_thread_id = ?", id).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) MaxSeq(dbc dbctx.Context, agentThreadID string) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var max *int64
	if err := txx.WithContext(dbc.Context()).
		Model(&types.AgentMessage{}).
		Where("agent_thread_id = ?", strings.TrimSpace(agentThreadID)).
		Select("MAX(seq)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*types.AgentMessage) error {
	if len(rows) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).Create(&rows).Error
}
