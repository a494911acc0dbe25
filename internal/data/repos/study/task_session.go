package study

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/db"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type TaskSessionRepo interface {
	// Ensure returns the session for (participant, task), creating it if absent.
	// Concurrent callers converge on the same row.
	Ensure(dbc dbctx.Context, participantID uuid.UUID, taskNumber int) (*types.TaskSession, error)
	Get(dbc dbctx.Context, participantID uuid.UUID, taskNumber int) (*types.TaskSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaskSession, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.TaskSession, error)
	ListByParticipant(dbc dbctx.Context, participantID uuid.UUID) ([]*types.TaskSession, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// StampOnce sets column to at only while it is still NULL.
	StampOnce(dbc dbctx.Context, id uuid.UUID, column string, at time.Time) (bool, error)
	AddCounters(dbc dbctx.Context, id uuid.UUID, deltas map[string]int64) error
}

type taskSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskSessionRepo(db *gorm.DB, log *logger.Logger) TaskSessionRepo {
	return &taskSessionRepo{db: db, log: log.With("repo", "TaskSessionRepo")}
}

var stampColumns = map[string]bool{
	"chat_started_at":          true,
	"chat_ended_at":            true,
	"ready_to_answer_at":       true,
	"post_survey_started_at":   true,
	"post_survey_submitted_at": true,
}

var counterColumns = map[string]bool{
	"user_message_count":      true,
	"assistant_message_count": true,
	"chat_restart_count":      true,
	"side_panel_open_count":   true,
	"side_panel_close_count":  true,
	"side_panel_open_ms":      true,
}

func (r *taskSessionRepo) Ensure(dbc dbctx.Context, participantID uuid.UUID, taskNumber int) (*types.TaskSession, error) {
	if participantID == uuid.Nil {
		return nil, fmt.Errorf("missing participant id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	row := &types.TaskSession{ParticipantID: participantID, TaskNumber: taskNumber}
	if err := txx.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}, {Name: "task_number"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	out, err := r.Get(dbc, participantID, taskNumber)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("task session %s/%d not visible after ensure", participantID, taskNumber)
	}
	return out, nil
}

func (r *taskSessionRepo) Get(dbc dbctx.Context, participantID uuid.UUID, taskNumber int) (*types.TaskSession, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.TaskSession
	if err := txx.WithContext(dbc.Context()).
		Where("participant_id = ? AND task_number = ?", participantID, taskNumber).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *taskSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaskSession, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing task session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.TaskSession
	if err := txx.WithContext(dbc.Context()).
		Where("id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *taskSessionRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.TaskSession, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing task session id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.TaskSession
	if err := db.ForUpdate(dbc.Tx.WithContext(dbc.Context())).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *taskSessionRepo) ListByParticipant(dbc dbctx.Context, participantID uuid.UUID) ([]*types.TaskSession, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.TaskSession
	if err := txx.WithContext(dbc.Context()).
		Where("participant_id = ?", participantID).
		Order("task_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *taskSessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing task session id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Model(&types.TaskSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *taskSessionRepo) StampOnce(dbc dbctx.Context, id uuid.UUID, column string, at time.Time) (bool, error) {
	if !stampColumns[column] {
		return false, fmt.Errorf("column %q is not a task session timestamp", column)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Context()).
		Model(&types.TaskSession{}).
		Where("id = ? AND "+column+" IS NULL", id).
		Updates(map[string]interface{}{column: at.UTC(), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *taskSessionRepo) AddCounters(dbc dbctx.Context, id uuid.UUID, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}
	updates := map[string]interface{}{"updated_at": time.Now().UTC()}
	for col, delta := range deltas {
		if !counterColumns[col] {
			return fmt.Errorf("column %q is not a task session counter", col)
		}
		updates[col] = gorm.Expr(col+" + ?", delta)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Model(&types.TaskSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
