package types

import "time"

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting to be claimed.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusClaimed indicates the task is owned by exactly one agent.
	TaskStatusClaimed TaskStatus = "claimed"
	// TaskStatusDone indicates the task finished successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task finished with an error.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid reports whether s is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusClaimed, TaskStatusDone, TaskStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

// Task is one unit of work in the shared pool. The description is an opaque
// payload; the coordinator never interprets it.
//
// ClaimedBy and ClaimedAt are set iff Status is claimed; reclamation clears
// both when it returns a task to pending.
type Task struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	Description string     `gorm:"type:text;not null" json:"description"`
	Status      TaskStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
	ClaimedBy   string     `gorm:"size:64;index" json:"claimedBy,omitempty"`
	ClaimedAt   *time.Time `json:"claimedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Result      string     `gorm:"type:text" json:"result,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "swarm_task"
}
