package audit

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type DataQualityLogRepo interface {
	// Create appends one row. A second write for the same run is ignored and
	// reported as false.
	Create(dbc dbctx.Context, row *types.ThreadDataQualityLog) (bool, error)
	LatestByThread(dbc dbctx.Context, agentThreadID string) (*types.ThreadDataQualityLog, error)
	CountByThread(dbc dbctx.Context, agentThreadID string) (int64, error)
	ListByThread(dbc dbctx.Context, agentThreadID string) ([]*types.ThreadDataQualityLog, error)
}

type dataQualityLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDataQualityLogRepo(db *gorm.DB, log *logger.Logger) DataQualityLogRepo {
	return &dataQualityLogRepo{db: db, log: log.With("repo", "DataQualityLogRepo")}
}

func (r *dataQualityLogRepo) Create(dbc dbctx.Context, row *types.ThreadDataQualityLog) (bool, error) {
	if row == nil || strings.TrimSpace(row.AgentThreadID) == "" || row.RunID == uuid.Nil {
		return false, fmt.Errorf("missing agent thread id or run id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *dataQualityLogRepo) LatestByThread(dbc dbctx.Context, agentThreadID string) (*types.ThreadDataQualityLog, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ThreadDataQualityLog
	if err := txx.WithContext(dbc.Context()).
		Where("agent_thread_id = ?", strings.TrimSpace(agentThreadID)).
		Order("created_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *dataQualityLogRepo) CountByThread(dbc dbctx.Context, agentThreadID string) (int64, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var n int64
	err := txx.WithContext(dbc.Context()).
		Model(&types.ThreadDataQualityLog{}).
		Where("agent_thread_id = ?", strings.TrimSpace(agentThreadID)).
		Count(&n).Error
	return n, err
}

func (r *dataQualityLogRepo) ListByThread(dbc dbctx.Context, agentThreadID string) ([]*types.ThreadDataQualityLog, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.ThreadDataQualityLog
	if err := txx.WithContext(dbc.Context()).
		Where("agent_thread_id = ?", strings.TrimSpace(agentThreadID)).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
