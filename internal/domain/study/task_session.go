package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TaskSession aggregates one participant's work on one task.
type TaskSession struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_task_session_participant_task,priority:1" json:"participant_id"`
	TaskNumber    int       `gorm:"column:task_number;not null;uniqueIndex:idx_task_session_participant_task,priority:2" json:"task_number"`

	ChatStartedAt         *time.Time `gorm:"column:chat_started_at" json:"chat_started_at,omitempty"`
	ChatEndedAt           *time.Time `gorm:"column:chat_ended_at" json:"chat_ended_at,omitempty"`
	ReadyToAnswerAt       *time.Time `gorm:"column:ready_to_answer_at" json:"ready_to_answer_at,omitempty"`
	PostSurveyStartedAt   *time.Time `gorm:"column:post_survey_started_at" json:"post_survey_started_at,omitempty"`
	PostSurveySubmittedAt *time.Time `gorm:"column:post_survey_submitted_at" json:"post_survey_submitted_at,omitempty"`

	UserMessageCount      int `gorm:"column:user_message_count;not null;default:0" json:"user_message_count"`
	AssistantMessageCount int `gorm:"column:assistant_message_count;not null;default:0" json:"assistant_message_count"`
	ChatRestartCount      int `gorm:"column:chat_restart_count;not null;default:0" json:"chat_restart_count"`

	SidePanelOpenCount  int   `gorm:"column:side_panel_open_count;not null;default:0" json:"side_panel_open_count"`
	SidePanelCloseCount int   `gorm:"column:side_panel_close_count;not null;default:0" json:"side_panel_close_count"`
	SidePanelOpenMs     int64 `gorm:"column:side_panel_open_ms;not null;default:0" json:"side_panel_open_ms"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (TaskSession) TableName() string { return "task_session" }

func (s *TaskSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
