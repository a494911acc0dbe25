package study

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type AccessLogRepo interface {
	Create(dbc dbctx.Context, row *types.AccessLog) error
	ListByParticipant(dbc dbctx.Context, participantID uuid.UUID) ([]*types.AccessLog, error)
}

type accessLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAccessLogRepo(db *gorm.DB, log *logger.Logger) AccessLogRepo {
	return &accessLogRepo{db: db, log: log.With("repo", "AccessLogRepo")}
}

func (r *accessLogRepo) Create(dbc dbctx.Context, row *types.AccessLog) error {
	if row == nil || row.ParticipantID == uuid.Nil {
		return fmt.Errorf("missing participant id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).Create(row).Error
}

func (r *accessLogRepo) ListByParticipant(dbc dbctx.Context, participantID uuid.UUID) ([]*types.AccessLog, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.AccessLog
	if err := txx.WithContext(dbc.Context()).
		Where("participant_id = ?", participantID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
