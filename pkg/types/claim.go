package types

import "time"

// Claim failure reasons reported in ClaimResult.Reason.
const (
	// ReasonContention means every candidate row was won by another agent
	// before our conditional update landed.
	ReasonContention = "contention"
	// ReasonNoPending means a fresh scan found no pending rows.
	ReasonNoPending = "no pending tasks"
	// ReasonNotFailed means a retry targeted a task that is not in the
	// failed status.
	ReasonNotFailed = "task is not failed"
	// ReasonTaskNotFound means a retry targeted an unknown task id.
	ReasonTaskNotFound = "task not found"
	// ReasonCancelled means the coordination run was cancelled and no new
	// claims are issued.
	ReasonCancelled = "swarm cancelled"
)

// ClaimResult is the outcome of a claim or retry attempt. Losing a race is
// not an error; callers branch on Success and Reason.
type ClaimResult struct {
	Success     bool   `json:"success"`
	TaskID      string `json:"taskId,omitempty"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SwarmStats is an aggregate snapshot of the pool and its agents.
type SwarmStats struct {
	Total        int64         `json:"total"`
	Pending      int64         `json:"pending"`
	Claimed      int64         `json:"claimed"`
	Done         int64         `json:"done"`
	Failed       int64         `json:"failed"`
	ActiveAgents int64         `json:"activeAgents"`
	Elapsed      time.Duration `json:"elapsedMs"`
}
