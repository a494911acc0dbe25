package study

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/study/steps"
)

type Participant struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccessCode string    `gorm:"column:access_code;not null;uniqueIndex" json:"access_code"`

	Status            steps.Status `gorm:"column:status;not null;index" json:"status"`
	CurrentStep       steps.Step   `gorm:"column:current_step;not null" json:"current_step"`
	CurrentTaskNumber *int         `gorm:"column:current_task_number" json:"current_task_number,omitempty"`

	AssignedVariant  string `gorm:"column:assigned_variant;not null;default:''" json:"assigned_variant"`
	SidePanelEnabled bool   `gorm:"column:side_panel_enabled;not null;default:false" json:"side_panel_enabled"`

	StartedAt    *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	LastActiveAt *time.Time `gorm:"column:last_active_at" json:"last_active_at,omitempty"`
	ReentryCount int        `gorm:"column:reentry_count;not null;default:0" json:"reentry_count"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Participant) TableName() string { return "participant" }

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// State is the progression-relevant view of p.
func (p *Participant) State() steps.State {
	return steps.State{Status: p.Status, Step: p.CurrentStep, TaskNumber: p.CurrentTaskNumber}
}

// Apply copies st onto p.
func (p *Participant) Apply(st steps.State) {
	p.Status = st.Status
	p.CurrentStep = st.Step
	p.CurrentTaskNumber = st.TaskNumber
}

// Route is the participant's canonical client route.
func (p *Participant) Route() string {
	path, err := steps.Resolve(p.AccessCode, p.State())
	if err != nil {
		return steps.EndedPath(p.AccessCode)
	}
	return path
}
