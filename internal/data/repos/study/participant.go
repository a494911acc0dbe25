package study

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/data/db"
	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type ParticipantRepo interface {
	Create(dbc dbctx.Context, rows []*types.Participant) ([]*types.Participant, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Participant, error)
	GetByAccessCode(dbc dbctx.Context, accessCode string) (*types.Participant, error)
	LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Participant, error)
	List(dbc dbctx.Context, limit, offset int) ([]*types.Participant, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	TouchLastActive(dbc dbctx.Context, id uuid.UUID, at time.Time) error
}

type participantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParticipantRepo(db *gorm.DB, log *logger.Logger) ParticipantRepo {
	return &participantRepo{db: db, log: log.With("repo", "ParticipantRepo")}
}

func (r *participantRepo) Create(dbc dbctx.Context, rows []*types.Participant) ([]*types.Participant, error) {
	if len(rows) == 0 {
		return []*types.Participant{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Context()).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *participantRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Participant, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing participant id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Participant
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

func (r *participantRepo) GetByAccessCode(dbc dbctx.Context, accessCode string) (*types.Participant, error) {
	code := strings.TrimSpace(accessCode)
	if code == "" {
		return nil, fmt.Errorf("missing access code")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Participant
	if err := txx.WithContext(dbc.Context()).
		Where("access_code = ?", code).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *participantRepo) LockByID(dbc dbctx.Context, id uuid.UUID) (*types.Participant, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing participant id")
	}
	if dbc.Tx == nil {
		return nil, fmt.Errorf("LockByID requires dbc.Tx")
	}
	var out types.Participant
	if err := db.ForUpdate(dbc.Tx.WithContext(dbc.Context())).
		Where("id = ?", id).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *participantRepo) List(dbc dbctx.Context, limit, offset int) ([]*types.Participant, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Participant
	if err := txx.WithContext(dbc.Context()).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *participantRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing participant id")
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
		Model(&types.Participant{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *participantRepo) TouchLastActive(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing participant id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Model(&types.Participant{}).
		Where("id = ?", id).
		UpdateColumn("last_active_at", at.UTC()).Error
}
