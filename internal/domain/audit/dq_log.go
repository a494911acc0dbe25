package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DQStatusOK           = "OK"
	DQStatusWarning      = "WARNING"
	DQStatusNotEvaluated = "NOT_EVALUATED"
	DQStatusUnknown      = "UNKNOWN"
)

// ThreadDataQualityLog is written once per completed user turn and never
// updated. RunID is unique so a retried write cannot produce a second row.
type ThreadDataQualityLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AgentThreadID string         `gorm:"column:agent_thread_id;not null;index" json:"agent_thread_id"`
	RunID         uuid.UUID      `gorm:"type:uuid;column:run_id;not null;uniqueIndex" json:"run_id"`
	Status        string         `gorm:"column:status;not null;index" json:"status"`
	Indicators    datatypes.JSON `gorm:"type:jsonb;column:indicators;not null" json:"indicators"`
	UsedTables    datatypes.JSON `gorm:"type:jsonb;column:used_tables;not null" json:"used_tables"`
	LastMainSQL   string         `gorm:"column:last_main_sql;type:text;not null;default:''" json:"last_main_sql"`
	LastDQSQL     string         `gorm:"column:last_dq_sql;type:text;not null;default:''" json:"last_dq_sql"`
	MainSQLCount  int            `gorm:"column:main_sql_count;not null;default:0" json:"main_sql_count"`
	DQSQLCount    int            `gorm:"column:dq_sql_count;not null;default:0" json:"dq_sql_count"`
	Model         string         `gorm:"column:model;not null;default:''" json:"model"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (ThreadDataQualityLog) TableName() string { return "thread_data_quality_log" }

func (l *ThreadDataQualityLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
