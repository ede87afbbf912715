// Package jobs holds the background tasks that keep persisted session state
// in step with the platform: permission snapshot fan-out and index sweeping.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPermissionsRefresh fans a role's edited permission set out to
	// every active session holding that role.
	TaskPermissionsRefresh = "permissions:refresh"
	// TaskSessionsSweep prunes expired sessions from the role indexes.
	TaskSessionsSweep = "sessions:sweep"
)

// PermissionsRefreshPayload names the role whose permissions changed.
type PermissionsRefreshPayload struct {
	RoleID int64 `json:"role_id"`
}

// NewPermissionsRefreshTask constructs an Asynq task.
func NewPermissionsRefreshTask(payload PermissionsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPermissionsRefresh, data), nil
}

// NewSessionsSweepTask constructs the sweep task; it carries no payload.
func NewSessionsSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsSweep, nil)
}
