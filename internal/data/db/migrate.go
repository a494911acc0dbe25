package db

import (
	"fmt"

	types "github.com/lxke19/submission-bachelorthesis-bl-ws2526-sub001/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureLedgerIndexes(db)
}

// EnsureLedgerIndexes creates the constraints AutoMigrate cannot express.
// Both statements are valid on Postgres and SQLite.
func EnsureLedgerIndexes(db *gorm.DB) error {
	// At most one open side-panel span per task session.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_side_panel_span_open
		ON side_panel_span (task_session_id)
		WHERE closed_at IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_side_panel_span_open: %w", err)
	}

	// At most one active thread per task session.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_thread_active
		ON chat_thread (task_session_id)
		WHERE status = 'ACTIVE';
	`).Error; err != nil {
		return fmt.Errorf("create idx_chat_thread_active: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_thread_dq_log_thread_created
		ON thread_data_quality_log (agent_thread_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_thread_dq_log_thread_created: %w", err)
	}
	return nil
}
