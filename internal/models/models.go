// Package models defines the gorm models shared across Groupforge.
package models

import "time"

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Operator records that a chat user has supplied the correct passphrase at
// least once. Rows are only ever added by the bot; revocation exists solely
// as a CLI admin operation.
type Operator struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	OperatorID   int64     `gorm:"uniqueIndex;not null"` // chat platform user ID
	AuthorizedAt time.Time `gorm:"not null"`
	CreatedAt    time.Time
}

// ProvisionRun is the persisted summary of one batch group-creation run.
// Group handles themselves are held in memory by the worker for the
// duration of the run; only the counts survive it.
type ProvisionRun struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	OperatorID    int64     `gorm:"not null;index"`
	Phone         string    `gorm:"size:32;not null;index"`
	Status        string    `gorm:"size:16;default:running;index"` // running, completed, failed
	Total         int       `gorm:"not null"`
	GroupsCreated int       `gorm:"not null"`
	GroupsFailed  int       `gorm:"not null"`
	Error         string    `gorm:"size:512"`
	LastHeartbeat time.Time `gorm:"index"`
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
