package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l54808821/swarmpool/internal/config"
	"github.com/l54808821/swarmpool/internal/database"
	"github.com/l54808821/swarmpool/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "swarm.db"),
		MaxOpenConns: 4,
	})
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db) })
	return New(db)
}

func seedTasks(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		_, err := s.AddTask(ctx, id, "work for "+id)
		require.NoError(t, err)
	}
}

func TestAddAndGetTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.AddTask(ctx, "t-1", "do the thing")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, created.Status)

	task, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "do the thing", task.Description)
	assert.Empty(t, task.ClaimedBy)
	assert.Nil(t, task.ClaimedAt)
}

func TestAddTaskGeneratesID(t *testing.T) {
	s := newTestStore(t)

	task, err := s.AddTask(context.Background(), "", "anonymous work")
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrTaskNotFound)
}

func TestClaimNextEmptyPool(t *testing.T) {
	s := newTestStore(t)

	res, err := s.ClaimNext(context.Background(), "agent-1", 3)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, types.ReasonNoPending, res.Reason)
}

func TestClaimNextEmptyAgentID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ClaimNext(context.Background(), "", 3)
	assert.Error(t, err)
}

func TestClaimNextFIFO(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-002", "t-001", "t-003")

	var order []string
	for i := 0; i < 3; i++ {
		res, err := s.ClaimNext(ctx, "agent-1", 3)
		require.NoError(t, err)
		require.True(t, res.Success)
		order = append(order, res.TaskID)
	}
	assert.Equal(t, []string{"t-001", "t-002", "t-003"}, order)
}

func TestClaimSetsOwnership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	res, err := s.ClaimNext(ctx, "agent-1", 3)
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "work for t-1", res.Description)

	task, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusClaimed, task.Status)
	assert.Equal(t, "agent-1", task.ClaimedBy)
	require.NotNil(t, task.ClaimedAt)
	assert.WithinDuration(t, time.Now(), *task.ClaimedAt, 5*time.Second)
}

func TestCompleteOwnershipGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Wrong agent: no mutation, no error.
	ok, err := s.Complete(ctx, "agent-b", "t-1", "bogus")
	require.NoError(t, err)
	assert.False(t, ok)

	task, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusClaimed, task.Status)
	assert.Equal(t, "agent-a", task.ClaimedBy)
	assert.Empty(t, task.Result)

	// Owner succeeds.
	ok, err = s.Complete(ctx, "agent-a", "t-1", "42")
	require.NoError(t, err)
	assert.True(t, ok)

	task, err = s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusDone, task.Status)
	assert.Equal(t, "42", task.Result)
	assert.NotNil(t, task.CompletedAt)

	// Second completion is a no-op.
	ok, err = s.Complete(ctx, "agent-a", "t-1", "43")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailRecordsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	ok, err := s.Fail(ctx, "agent-a", "t-1", "out of cheese")
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusFailed, task.Status)
	assert.Equal(t, "out of cheese", task.Error)
}

func TestRetryFailedTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)
	_, err = s.Fail(ctx, "agent-a", "t-1", "transient")
	require.NoError(t, err)

	retry, err := s.Retry(ctx, "agent-b", "t-1")
	require.NoError(t, err)
	require.True(t, retry.Success)
	assert.Equal(t, "t-1", retry.TaskID)

	task, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusClaimed, task.Status)
	assert.Equal(t, "agent-b", task.ClaimedBy)
	assert.Empty(t, task.Error)
	assert.Nil(t, task.CompletedAt)
}

func TestRetryGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	// Pending task cannot be retried.
	res, err := s.Retry(ctx, "agent-a", "t-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, types.ReasonNotFailed, res.Reason)

	// Unknown id.
	res, err = s.Retry(ctx, "agent-a", "missing")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, types.ReasonTaskNotFound, res.Reason)
}

func TestConcurrentClaimSingleTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	results := make([]*types.ClaimResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agent := []string{"agent-a", "agent-b"}[i]
			results[i], errs[i] = s.ClaimNext(ctx, agent, 3)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	winners := 0
	for _, res := range results {
		if res.Success {
			winners++
		} else {
			assert.Contains(t, []string{types.ReasonContention, types.ReasonNoPending}, res.Reason)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestConcurrentClaimsNoDoubleClaim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const taskCount = 20
	for i := 0; i < taskCount; i++ {
		_, err := s.AddTask(ctx, "", "work")
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[string][]string) // taskID -> claiming agents
	var firstErr error

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			for {
				res, err := s.ClaimNext(ctx, agent, 5)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				if !res.Success {
					if res.Reason == types.ReasonNoPending {
						return
					}
					continue // contention, try again
				}
				mu.Lock()
				claimed[res.TaskID] = append(claimed[res.TaskID], agent)
				mu.Unlock()
			}
		}("agent-" + string(rune('a'+i)))
	}
	wg.Wait()

	require.NoError(t, firstErr)
	assert.Len(t, claimed, taskCount)
	for taskID, agents := range claimed {
		assert.Len(t, agents, 1, "task %s claimed by %v", taskID, agents)
	}
}

func TestReleaseGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Claim is fresh: a cutoff in the past must not release it.
	ok, err := s.Release(ctx, "t-1", "agent-a", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// Cutoff after the claim time releases and clears ownership.
	ok, err = s.Release(ctx, "t-1", "agent-a", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.True(t, ok)

	task, err := s.GetTask(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusPending, task.Status)
	assert.Empty(t, task.ClaimedBy)
	assert.Nil(t, task.ClaimedAt)

	// Already released: second release is a no-op.
	ok, err = s.Release(ctx, "t-1", "agent-a", time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCountByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1", "t-2", "t-3")

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)
	_, err = s.Complete(ctx, "agent-a", res.TaskID, "done")
	require.NoError(t, err)

	res, err = s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[types.TaskStatusPending])
	assert.Equal(t, int64(1), counts[types.TaskStatusClaimed])
	assert.Equal(t, int64(1), counts[types.TaskStatusDone])
	assert.Equal(t, int64(0), counts[types.TaskStatusFailed])
}

func TestHasPendingAndIsComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending, err := s.HasPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)

	complete, err := s.IsComplete(ctx)
	require.NoError(t, err)
	assert.True(t, complete)

	seedTasks(t, s, "t-1")

	pending, err = s.HasPending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	// Claimed but not terminal: not complete.
	complete, err = s.IsComplete(ctx)
	require.NoError(t, err)
	assert.False(t, complete)

	_, err = s.Complete(ctx, "agent-a", "t-1", "x")
	require.NoError(t, err)

	complete, err = s.IsComplete(ctx)
	require.NoError(t, err)
	assert.True(t, complete)
}

func TestTasksByStatusReturnsResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)
	_, err = s.Complete(ctx, "agent-a", "t-1", "x")
	require.NoError(t, err)

	done, err := s.TasksByStatus(ctx, types.TaskStatusDone)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, "t-1", done[0].ID)
	assert.Equal(t, "x", done[0].Result)
}

func TestTasksByStatusInvalid(t *testing.T) {
	s := newTestStore(t)

	_, err := s.TasksByStatus(context.Background(), "bogus")
	assert.Error(t, err)
}

func TestTasksByAgent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1", "t-2", "t-3")

	for i := 0; i < 2; i++ {
		res, err := s.ClaimNext(ctx, "agent-a", 3)
		require.NoError(t, err)
		require.True(t, res.Success)
		_, err = s.Complete(ctx, "agent-a", res.TaskID, "ok")
		require.NoError(t, err)
	}
	res, err := s.ClaimNext(ctx, "agent-b", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	tasks, err := s.TasksByAgent(ctx, "agent-a")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	tasks, err = s.TasksByAgent(ctx, "agent-b")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCurrentTaskOf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedTasks(t, s, "t-1")

	current, err := s.CurrentTaskOf(ctx, "agent-a")
	require.NoError(t, err)
	assert.Empty(t, current)

	res, err := s.ClaimNext(ctx, "agent-a", 3)
	require.NoError(t, err)
	require.True(t, res.Success)

	current, err = s.CurrentTaskOf(ctx, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, "t-1", current)

	_, err = s.Complete(ctx, "agent-a", "t-1", "x")
	require.NoError(t, err)

	current, err = s.CurrentTaskOf(ctx, "agent-a")
	require.NoError(t, err)
	assert.Empty(t, current)
}
