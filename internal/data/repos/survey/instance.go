package survey

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

type InstanceRepo interface {
	// Ensure creates the (participant, phase) instance unless one exists and
	// returns the persisted row either way.
	Ensure(dbc dbctx.Context, row *types.SurveyInstance) (*types.SurveyInstance, error)
	Get(dbc dbctx.Context, participantID uuid.UUID, phase string) (*types.SurveyInstance, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.SurveyInstance, error)
	// MarkSubmitted stamps submitted_at once.
	MarkSubmitted(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
}

type instanceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInstanceRepo(db *gorm.DB, log *logger.Logger) InstanceRepo {
	return &instanceRepo{db: db, log: log.With("repo", "SurveyInstanceRepo")}
}

func (r *instanceRepo) Ensure(dbc dbctx.Context, row *types.SurveyInstance) (*types.SurveyInstance, error) {
	if row == nil || row.ParticipantID == uuid.Nil || row.Phase == "" {
		return nil, fmt.Errorf("missing participant id or phase")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_id"}, {Name: "phase"}},
			DoNothing: true,
		}).
		Create(row).Error; err != nil {
		return nil, err
	}
	out, err := r.Get(dbc, row.ParticipantID, row.Phase)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("survey instance %s/%s not visible after ensure", row.ParticipantID, row.Phase)
	}
	return out, nil
}

func (r *instanceRepo) Get(dbc dbctx.Context, participantID uuid.UUID, phase string) (*types.SurveyInstance, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SurveyInstance
	if err := txx.WithContext(dbc.Context()).
		Where("participant_id = ? AND phase = ?", participantID, phase).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *instanceRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.SurveyInstance, error) {
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.SurveyInstance
	if err := db.ForUpdate(dbc.Tx.WithContext(dbc.Context())).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *instanceRepo) MarkSubmitted(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Context()).
		Model(&types.SurveyInstance{}).
		Where("id = ? AND submitted_at IS NULL", id).
		Updates(map[string]interface{}{"submitted_at": at.UTC(), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
