package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/l54808821/swarmpool/pkg/types"
)

// CreateSession starts a new coordination run. Only one session may be
// active at a time.
func (s *Store) CreateSession(ctx context.Context, agentCount int) (*types.Session, error) {
	active, err := s.ActiveSession(ctx)
	if err != nil && !errors.Is(err, types.ErrSessionNotFound) {
		return nil, err
	}
	if active != nil {
		return nil, types.ErrSessionActive
	}

	session := &types.Session{
		ID:         uuid.New().String(),
		AgentCount: agentCount,
		StartedAt:  time.Now(),
		Active:     true,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return session, nil
}

// ActiveSession returns the currently active session.
func (s *Store) ActiveSession(ctx context.Context) (*types.Session, error) {
	var session types.Session
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("started_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return &session, nil
}

// GetSessionByID returns one session by id.
func (s *Store) GetSessionByID(ctx context.Context, sessionID string) (*types.Session, error) {
	var session types.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrSessionNotFound
	}
	if err != nil {
		return nil, types.StoreUnavailable(err)
	}
	return &session, nil
}

// CloseSession marks a session finished. Idempotent: closing an already
// closed session affects zero rows.
func (s *Store) CloseSession(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&types.Session{}).
		Where("id = ? AND active = ?", sessionID, true).
		Updates(map[string]interface{}{
			"active":       false,
			"completed_at": time.Now(),
		})
	if res.Error != nil {
		return types.StoreUnavailable(res.Error)
	}
	return nil
}
