package agent

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one persisted entry of an agent thread's history. Seq is
// assigned per thread and unique with it, which also serialises concurrent
// runs on the same thread.
type Message struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AgentThreadID string         `gorm:"column:agent_thread_id;not null;uniqueIndex:idx_agent_message_thread_seq,priority:1" json:"agent_thread_id"`
	Seq           int64          `gorm:"column:seq;not null;uniqueIndex:idx_agent_message_thread_seq,priority:2" json:"seq"`
	RunID         uuid.UUID      `gorm:"type:uuid;column:run_id;not null;index" json:"run_id"`
	Role          string         `gorm:"column:role;not null" json:"role"`
	Content       string         `gorm:"column:content;type:text;not null;default:''" json:"content"`
	Name          string         `gorm:"column:name;not null;default:''" json:"name,omitempty"`
	ToolCallID    string         `gorm:"column:tool_call_id;not null;default:''" json:"tool_call_id,omitempty"`
	ToolCalls     datatypes.JSON `gorm:"type:jsonb;column:tool_calls" json:"tool_calls,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string { return "agent_message" }

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
