package bot

import (
	"fmt"
	"time"

	"github.com/oxang/groupforge/internal/models"
	"gorm.io/gorm"
)

// DefaultRunHeartbeatTimeout is how stale a running ProvisionRun's heartbeat
// may be before the sweeper declares it dead.
const DefaultRunHeartbeatTimeout = 90 * time.Second

// SweepStaleRuns marks running ProvisionRun rows whose heartbeat is older
// than the timeout as failed. A row goes stale when the process died
// mid-run; the remote groups it abandoned simply stay un-left.
func SweepStaleRuns(db *gorm.DB, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		timeout = DefaultRunHeartbeatTimeout
	}
	cutoff := time.Now().Add(-timeout)
	now := time.Now()

	result := db.Model(&models.ProvisionRun{}).
		Where("status = ? AND last_heartbeat < ?", models.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":       models.RunStatusFailed,
			"error":        "heartbeat lost",
			"completed_at": &now,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("bot: sweep stale runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
