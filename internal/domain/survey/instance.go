package survey

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Instance is one participant's copy of a phase questionnaire.
type Instance struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_survey_instance_participant_phase,priority:1" json:"participant_id"`
	Phase         string     `gorm:"column:phase;not null;uniqueIndex:idx_survey_instance_participant_phase,priority:2" json:"phase"`
	TemplateID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"template_id"`
	TaskSessionID *uuid.UUID `gorm:"type:uuid;index" json:"task_session_id,omitempty"`
	StartedAt     time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	SubmittedAt   *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (Instance) TableName() string { return "survey_instance" }

func (i *Instance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Answer holds exactly one of the typed value columns, chosen by the
// question type. MULTI_CHOICE selections live in AnswerOption rows.
type Answer struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InstanceID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_survey_answer_instance_question,priority:1" json:"instance_id"`
	QuestionID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_survey_answer_instance_question,priority:2" json:"question_id"`
	Type       string     `gorm:"column:type;not null" json:"type"`
	NumberVal  *int       `gorm:"column:number_value" json:"number_value,omitempty"`
	TextVal    *string    `gorm:"column:text_value;type:text" json:"text_value,omitempty"`
	OptionID   *uuid.UUID `gorm:"type:uuid;column:option_id" json:"option_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

func (Answer) TableName() string { return "survey_answer" }

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type AnswerOption struct {
	AnswerID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"answer_id"`
	OptionID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"option_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (AnswerOption) TableName() string { return "survey_answer_option" }
