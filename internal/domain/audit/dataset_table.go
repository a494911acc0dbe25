package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DatasetTable maps a dataset-database table to the dataset it belongs to.
type DatasetTable struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Table        string    `gorm:"column:table_name;not null;uniqueIndex" json:"table_name"`
	DatasetKey   string    `gorm:"column:dataset_key;not null;index" json:"dataset_key"`
	DatasetTitle string    `gorm:"column:dataset_title;not null;default:''" json:"dataset_title"`
	Description  string    `gorm:"column:description;type:text;not null;default:''" json:"description,omitempty"`
	SourceURL    string    `gorm:"column:source_url;not null;default:''" json:"source_url,omitempty"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (DatasetTable) TableName() string { return "dataset_table" }

func (d *DatasetTable) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
