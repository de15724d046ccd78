// Package heartbeat tracks agent liveness. Heartbeats are advisory: the
// lease reclaimer combines their staleness with claim age before presuming
// an agent dead, so a missing or slow heartbeat alone never costs a task.
package heartbeat

import (
	"context"
	"time"
)

// Registry records "agent X was alive at T, working on task Y" and answers
// liveness questions for the reclaimer and the stats path.
type Registry interface {
	// Beat upserts (agentID, now, currentTaskID). Best-effort for callers:
	// a failed beat only delays dead-agent detection.
	Beat(ctx context.Context, agentID, currentTaskID string) error

	// LastSeen returns the last heartbeat time for agentID. ok is false when
	// the agent has never heartbeated.
	LastSeen(ctx context.Context, agentID string) (last time.Time, ok bool, err error)

	// CountActive returns the number of agents seen at or after since.
	CountActive(ctx context.Context, since time.Time) (int64, error)
}
