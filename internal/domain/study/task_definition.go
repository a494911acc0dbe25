package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskDefinition is the task text shown for one task number and variant. The
// empty variant is the fallback.
type TaskDefinition struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskNumber  int       `gorm:"column:task_number;not null;uniqueIndex:idx_task_definition_number_variant,priority:1" json:"task_number"`
	Variant     string    `gorm:"column:variant;not null;default:'';uniqueIndex:idx_task_definition_number_variant,priority:2" json:"variant"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Question    string    `gorm:"column:question;type:text;not null;default:''" json:"question"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (TaskDefinition) TableName() string { return "task_definition" }

func (d *TaskDefinition) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
