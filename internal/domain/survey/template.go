package survey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type QuestionType string

const (
	QuestionScaleNRS     QuestionType = "SCALE_NRS"
	QuestionSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionMultiChoice  QuestionType = "MULTI_CHOICE"
	QuestionText         QuestionType = "TEXT"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionScaleNRS, QuestionSingleChoice, QuestionMultiChoice, QuestionText:
		return true
	}
	return false
}

// Template is the questionnaire answered in one phase.
type Template struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Phase       string     `gorm:"column:phase;not null;uniqueIndex" json:"phase"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Description string     `gorm:"column:description;type:text;not null;default:''" json:"description"`
	Questions   []Question `gorm:"foreignKey:TemplateID" json:"questions,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Template) TableName() string { return "survey_template" }

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type Question struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_survey_question_template_key,priority:1" json:"template_id"`
	Key        string       `gorm:"column:question_key;not null;uniqueIndex:idx_survey_question_template_key,priority:2" json:"key"`
	Position   int          `gorm:"column:position;not null;default:0" json:"position"`
	Type       QuestionType `gorm:"column:type;not null" json:"type"`
	Prompt     string       `gorm:"column:prompt;type:text;not null" json:"prompt"`
	Required   bool         `gorm:"column:required;not null;default:false" json:"required"`

	ScaleMin      *int   `gorm:"column:scale_min" json:"scale_min,omitempty"`
	ScaleMax      *int   `gorm:"column:scale_max" json:"scale_max,omitempty"`
	ScaleStep     *int   `gorm:"column:scale_step" json:"scale_step,omitempty"`
	ScaleMinLabel string `gorm:"column:scale_min_label;not null;default:''" json:"scale_min_label,omitempty"`
	ScaleMaxLabel string `gorm:"column:scale_max_label;not null;default:''" json:"scale_max_label,omitempty"`

	Options   []Option  `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Question) TableName() string { return "survey_question" }

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// Scale returns min, max and step with the NRS defaults 0..10 step 1.
func (q *Question) Scale() (min, max, step int) {
	min, max, step = 0, 10, 1
	if q.ScaleMin != nil {
		min = *q.ScaleMin
	}
	if q.ScaleMax != nil {
		max = *q.ScaleMax
	}
	if q.ScaleStep != nil && *q.ScaleStep > 0 {
		step = *q.ScaleStep
	}
	return min, max, step
}

type Option struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	QuestionID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_survey_option_question_value,priority:1" json:"question_id"`
	Value      string    `gorm:"column:value;not null;uniqueIndex:idx_survey_option_question_value,priority:2" json:"value"`
	Label      string    `gorm:"column:label;not null" json:"label"`
	Position   int       `gorm:"column:position;not null;default:0" json:"position"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (Option) TableName() string { return "survey_option" }

func (o *Option) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
