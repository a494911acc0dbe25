package study

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type SidePanelSpanRepo interface {
	Create(dbc dbctx.Context, row *types.SidePanelSpan) (*types.SidePanelSpan, error)
	GetOpenBySession(dbc dbctx.Context, taskSessionID uuid.UUID) (*types.SidePanelSpan, error)
	// LatestOpenForParticipant looks across all of the participant's sessions.
	LatestOpenForParticipant(dbc dbctx.Context, participantID uuid.UUID) (*types.SidePanelSpan, error)
	ListBySession(dbc dbctx.Context, taskSessionID uuid.UUID) ([]*types.SidePanelSpan, error)
	// CloseIfOpen closes the span unless it is already closed.
	CloseIfOpen(dbc dbctx.Context, id uuid.UUID, closedAt time.Time, durationMs int64, finalized bool) (bool, error)
}

type sidePanelSpanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSidePanelSpanRepo(db *gorm.DB, log *logger.Logger) SidePanelSpanRepo {
	return &sidePanelSpanRepo{db: db, log: log.With("repo", "SidePanelSpanRepo")}
}

func (r *sidePanelSpanRepo) Create(dbc dbctx.Context, row *types.SidePanelSpan) (*types.SidePanelSpan, error) {
	if row == nil || row.TaskSessionID == uuid.Nil {
		return nil, fmt.Errorf("missing task session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Context()).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *sidePanelSpanRepo) GetOpenBySession(dbc dbctx.Context, taskSessionID uuid.UUID) (*types.SidePanelSpan, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SidePanelSpan
	if err := txx.WithContext(dbc.Context()).
		Where("task_session_id = ? AND closed_at IS NULL", taskSessionID).
		Order("opened_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *sidePanelSpanRepo) LatestOpenForParticipant(dbc dbctx.Context, participantID uuid.UUID) (*types.SidePanelSpan, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SidePanelSpan
	if err := txx.WithContext(dbc.Context()).
		Model(&types.SidePanelSpan{}).
		Select("side_panel_span.*").
		Joins("JOIN task_session ON task_session.id = side_panel_span.task_session_id").
		Where("task_session.participant_id = ? AND side_panel_span.closed_at IS NULL", participantID).
		Order("side_panel_span.opened_at DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *sidePanelSpanRepo) ListBySession(dbc dbctx.Context, taskSessionID uuid.UUID) ([]*types.SidePanelSpan, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SidePanelSpan
	if err := txx.WithContext(dbc.Context()).
		Where("task_session_id = ?", taskSessionID).
		Order("opened_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sidePanelSpanRepo) CloseIfOpen(dbc dbctx.Context, id uuid.UUID, closedAt time.Time, durationMs int64, finalized bool) (bool, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Context()).
		Model(&types.SidePanelSpan{}).
		Where("id = ? AND closed_at IS NULL", id).
		Updates(map[string]interface{}{
			"closed_at":   closedAt.UTC(),
			"duration_ms": durationMs,
			"finalized":   finalized,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
