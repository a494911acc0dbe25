package survey

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type TemplateRepo interface {
	// GetByPhase loads the template with questions and options in display order.
	GetByPhase(dbc dbctx.Context, phase string) (*types.SurveyTemplate, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SurveyTemplate, error)
	// Replace swaps the template for phase, questions and options included.
	Replace(dbc dbctx.Context, tmpl *types.SurveyTemplate) (*types.SurveyTemplate, error)
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, log *logger.Logger) TemplateRepo {
	return &templateRepo{db: db, log: log.With("repo", "SurveyTemplateRepo")}
}

func preloadQuestions(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})
}

func (r *templateRepo) GetByPhase(dbc dbctx.Context, phase string) (*types.SurveyTemplate, error) {
	p := strings.TrimSpace(phase)
	if p == "" {
		return nil, fmt.Errorf("missing phase")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SurveyTemplate
	if err := preloadQuestions(txx.WithContext(dbc.Context())).
		Where("phase = ?", p).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *templateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.SurveyTemplate, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.SurveyTemplate
	if err := preloadQuestions(txx.WithContext(dbc.Context())).
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

// Replace keeps the template row (and its id) stable so existing instances stay
// linked, and rewrites questions by key.
func (r *templateRepo) Replace(dbc dbctx.Context, tmpl *types.SurveyTemplate) (*types.SurveyTemplate, error) {
	if tmpl == nil || strings.TrimSpace(tmpl.Phase) == "" {
		return nil, fmt.Errorf("missing template phase")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	err := txx.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
		var existing []*types.SurveyTemplate
		if err := tx.Where("phase = ?", tmpl.Phase).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		questions := tmpl.Questions
		tmpl.Questions = nil
		if len(existing) == 0 {
			if err := tx.Create(tmpl).Error; err != nil {
				return err
			}
		} else {
			tmpl.ID = existing[0].ID
			if err := tx.Model(&types.SurveyTemplate{}).Where("id = ?", tmpl.ID).
				Updates(map[string]interface{}{"title": tmpl.Title, "description": tmpl.Description}).Error; err != nil {
				return err
			}
		}
		for i := range questions {
			q := &questions[i]
			q.TemplateID = tmpl.ID
			if q.Position == 0 {
				q.Position = i + 1
			}
			if err := r.replaceQuestion(tx, q); err != nil {
				return fmt.Errorf("question %q: %w", q.Key, err)
			}
		}
		tmpl.Questions = questions
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (r *templateRepo) replaceQuestion(tx *gorm.DB, q *types.SurveyQuestion) error {
	var existing []*types.SurveyQuestion
	if err := tx.Where("template_id = ? AND question_key = ?", q.TemplateID, q.Key).Limit(1).Find(&existing).Error; err != nil {
		return err
	}
	options := q.Options
	q.Options = nil
	if len(existing) == 0 {
		if err := tx.Create(q).Error; err != nil {
			return err
		}
	} else {
		q.ID = existing[0].ID
		if err := tx.Model(&types.SurveyQuestion{}).Where("id = ?", q.ID).Updates(map[string]interface{}{
			"position":        q.Position,
			"type":            string(q.Type),
			"prompt":          q.Prompt,
			"required":        q.Required,
			"scale_min":       q.ScaleMin,
			"scale_max":       q.ScaleMax,
			"scale_step":      q.ScaleStep,
			"scale_min_label": q.ScaleMinLabel,
			"scale_max_label": q.ScaleMaxLabel,
		}).Error; err != nil {
			return err
		}
	}
	for i, o := range options {
		o.QuestionID = q.ID
		if o.Position == 0 {
			o.Position = i + 1
		}
		var found []*types.SurveyOption
		if err := tx.Where("question_id = ? AND value = ?", q.ID, o.Value).Limit(1).Find(&found).Error; err != nil {
			return err
		}
		if len(found) == 0 {
			if err := tx.Create(o).Error; err != nil {
				return err
			}
			continue
		}
		o.ID = found[0].ID
		if err := tx.Model(&types.SurveyOption{}).Where("id = ?", o.ID).
			Updates(map[string]interface{}{"label": o.Label, "position": o.Position}).Error; err != nil {
			return err
		}
	}
	q.Options = options
	return nil
}
