package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SidePanelSpan is one open-to-close interval of the data side panel.
// At most one span per session has a nil ClosedAt; a partial unique index
// enforces it (see data/db).
type SidePanelSpan struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskSessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"task_session_id"`

	ChatThreadID  *uuid.UUID `gorm:"type:uuid;index" json:"chat_thread_id,omitempty"`
	AgentThreadID string     `gorm:"column:agent_thread_id;not null;default:''" json:"agent_thread_id,omitempty"`
	MessageSeq    *int64     `gorm:"column:message_seq" json:"message_seq,omitempty"`

	OpenedAt   time.Time  `gorm:"column:opened_at;not null;index" json:"opened_at"`
	ClosedAt   *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`
	DurationMs *int64     `gorm:"column:duration_ms" json:"duration_ms,omitempty"`
	// Finalized marks spans closed by a phase checkpoint instead of a close event.
	Finalized bool `gorm:"column:finalized;not null;default:false" json:"finalized"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (SidePanelSpan) TableName() string { return "side_panel_span" }

func (s *SidePanelSpan) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SpanDurationMs is max(0, end-start) in milliseconds.
func SpanDurationMs(start, end time.Time) int64 {
	d := end.Sub(start).Milliseconds()
	if d < 0 {
		return 0
	}
	return d
}
