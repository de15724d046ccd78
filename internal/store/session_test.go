package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l54808821/swarmpool/pkg/types"
)

func TestCreateAndCloseSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, 4)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 4, session.AgentCount)
	assert.True(t, session.Active)
	assert.Nil(t, session.CompletedAt)

	active, err := s.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.ID, active.ID)

	require.NoError(t, s.CloseSession(ctx, session.ID))

	closed, err := s.GetSessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	assert.NotNil(t, closed.CompletedAt)

	_, err = s.ActiveSession(ctx)
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}

func TestCreateSessionRejectsSecondActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSession(ctx, 2)
	require.NoError(t, err)

	_, err = s.CreateSession(ctx, 2)
	assert.ErrorIs(t, err, types.ErrSessionActive)
}

func TestCloseSessionIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session, err := s.CreateSession(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, s.CloseSession(ctx, session.ID))
	require.NoError(t, s.CloseSession(ctx, session.ID))
}

func TestActiveSessionNone(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ActiveSession(context.Background())
	assert.ErrorIs(t, err, types.ErrSessionNotFound)
}
