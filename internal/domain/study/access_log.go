package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AccessEventSessionStart = "SESSION_START"
	AccessEventReentry      = "REENTRY"
)

type AccessLog struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID uuid.UUID `gorm:"type:uuid;not null;index" json:"participant_id"`
	Event         string    `gorm:"column:event;not null" json:"event"`
	Step          string    `gorm:"column:step;not null;default:''" json:"step"`
	ClientIP      string    `gorm:"column:client_ip;not null;default:''" json:"client_ip,omitempty"`
	UserAgent     string    `gorm:"column:user_agent;not null;default:''" json:"user_agent,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
}

func (AccessLog) TableName() string { return "participant_access_log" }

func (l *AccessLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
