package study

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type TaskDefinitionRepo interface {
	// Get returns the definition for the variant, falling back to the default
	// (empty) variant.
	Get(dbc dbctx.Context, taskNumber int, variant string) (*types.TaskDefinition, error)
	Upsert(dbc dbctx.Context, rows []*types.TaskDefinition) error
}

type taskDefinitionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskDefinitionRepo(db *gorm.DB, log *logger.Logger) TaskDefinitionRepo {
	return &taskDefinitionRepo{db: db, log: log.With("repo", "TaskDefinitionRepo")}
}

func (r *taskDefinitionRepo) Get(dbc dbctx.Context, taskNumber int, variant string) (*types.TaskDefinition, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.TaskDefinition
	if err := txx.WithContext(dbc.Context()).
		Where("task_number = ? AND variant IN ?", taskNumber, []string{variant, ""}).
		Find(&out).Error; err != nil {
		return nil, err
	}
	var fallback *types.TaskDefinition
	for _, d := range out {
		if d.Variant == variant {
			return d, nil
		}
		if d.Variant == "" {
			fallback = d
		}
	}
	return fallback, nil
}

func (r *taskDefinitionRepo) Upsert(dbc dbctx.Context, rows []*types.TaskDefinition) error {
	if len(rows) == 0 {
		return nil
	}
	for _, row := range rows {
		if row.TaskNumber <= 0 {
			return fmt.Errorf("task definition %q: missing task number", row.Title)
		}
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_number"}, {Name: "variant"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"title":       gorm.Expr("excluded.title"),
				"description": gorm.Expr("excluded.description"),
				"question":    gorm.Expr("excluded.question"),
				"updated_at":  time.Now().UTC(),
			}),
		}).
		Create(&rows).Error
}
