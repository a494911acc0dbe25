package audit

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/dbctx"
	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/platform/logger"
)

type DatasetTableRepo interface {
	GetByTables(dbc dbctx.Context, tables []string) ([]*types.DatasetTable, error)
	Upsert(dbc dbctx.Context, rows []*types.DatasetTable) error
}

type datasetTableRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDatasetTableRepo(db *gorm.DB, log *logger.Logger) DatasetTableRepo {
	return &datasetTableRepo{db: db, log: log.With("repo", "DatasetTableRepo")}
}

func (r *datasetTableRepo) GetByTables(dbc dbctx.Context, tables []string) ([]*types.DatasetTable, error) {
	if len(tables) == 0 {
		return []*types.DatasetTable{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.DatasetTable
	if err := txx.WithContext(dbc.Context()).
		Where("table_name IN ?", tables).
		Order("dataset_key ASC, table_name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *datasetTableRepo) Upsert(dbc dbctx.Context, rows []*types.DatasetTable) error {
	if len(rows) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Context()).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "table_name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"dataset_key":   gorm.Expr("excluded.dataset_key"),
				"dataset_title": gorm.Expr("excluded.dataset_title"),
				"description":   gorm.Expr("excluded.description"),
				"source_url":    gorm.Expr("excluded.source_url"),
				"updated_at":    time.Now().UTC(),
			}),
		}).
		Create(&rows).Error
}
