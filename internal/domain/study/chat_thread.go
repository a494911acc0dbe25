package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ThreadStatusActive = "ACTIVE"
	ThreadStatusClosed = "CLOSED"
)

const (
	CloseReasonRestarted    = "RESTARTED"
	CloseReasonTaskFinished = "TASK_FINISHED"
	CloseReasonAbandoned    = "ABANDONED"
	CloseReasonError        = "ERROR"
)

func ValidCloseReason(r string) bool {
	switch r {
	case CloseReasonRestarted, CloseReasonTaskFinished, CloseReasonAbandoned, CloseReasonError:
		return true
	}
	return false
}

// ChatThread mirrors one agent-runtime thread. AgentThreadID is the runtime's
// identifier and is unique across all sessions.
type ChatThread struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TaskSessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"task_session_id"`
	AgentThreadID string    `gorm:"column:agent_thread_id;not null;uniqueIndex" json:"agent_thread_id"`

	Status       string     `gorm:"column:status;not null;index" json:"status"`
	CloseReason  *string    `gorm:"column:close_reason" json:"close_reason,omitempty"`
	RestartIndex int        `gorm:"column:restart_index;not null;default:0" json:"restart_index"`
	StartedAt    time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	ClosedAt     *time.Time `gorm:"column:closed_at" json:"closed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (ChatThread) TableName() string { return "chat_thread" }

func (t *ChatThread) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
