package survey

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type AnswerRepo interface {
	Create(dbc dbctx.Context, answers []*types.SurveyAnswer, selections []*types.SurveyAnswerOption) error
	ListByInstance(dbc dbctx.Context, instanceID uuid.UUID) ([]*types.SurveyAnswer, error)
	ListSelections(dbc dbctx.Context, answerIDs []uuid.UUID) ([]*types.SurveyAnswerOption, error)
}

type answerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnswerRepo(db *gorm.DB, log *logger.Logger) AnswerRepo {
	return &answerRepo{db: db, log: log.With("repo", "SurveyAnswerRepo")}
}

func (r *answerRepo) Create(dbc dbctx.Context, answers []*types.SurveyAnswer, selections []*types.SurveyAnswerOption) error {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if len(answers) > 0 {
		if err := txx.WithContext(dbc.Context()).Create(&answers).Error; err != nil {
			return err
		}
	}
	if len(selections) > 0 {
		if err := txx.WithContext(dbc.Context()).Create(&selections).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *answerRepo) ListByInstance(dbc dbctx.Context, instanceID uuid.UUID) ([]*types.SurveyAnswer, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SurveyAnswer
	if err := txx.WithContext(dbc.Context()).
		Where("instance_id = ?", instanceID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *answerRepo) ListSelections(dbc dbctx.Context, answerIDs []uuid.UUID) ([]*types.SurveyAnswerOption, error) {
	if len(answerIDs) == 0 {
		return []*types.SurveyAnswerOption{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SurveyAnswerOption
	if err := txx.WithContext(dbc.Context()).
		Where("answer_id IN ?", answerIDs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
