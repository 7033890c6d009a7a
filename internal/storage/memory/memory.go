// Package memory is an in-process storage.Store. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
)

type Store struct {
	mu            sync.RWMutex
	profiles      map[string]models.Profile
	subscriptions map[string][]models.PushSubscription // userID -> subscriptions
	credentials   map[string]models.Credentials
}

func New() *Store {
	return &Store{
		profiles:      make(map[string]models.Profile),
		subscriptions: make(map[string][]models.PushSubscription),
		credentials:   make(map[string]models.Credentials),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Profile(_ context.Context, userID string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

func (s *Store) SaveProfile(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.ID] = *profile
	return nil
}

func (s *Store) Subscriptions(_ context.Context, userID string) ([]models.PushSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.subscriptions[userID]
	out := make([]models.PushSubscription, len(subs))
	copy(out, subs)
	return out, nil
}

func (s *Store) ReplaceSubscription(_ context.Context, sub *models.PushSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscriptions[sub.UserID] = []models.PushSubscription{*sub}
	return nil
}

func (s *Store) Credentials(_ context.Context, userID string) (*models.Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *Store) SaveCredentials(_ context.Context, creds *models.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[creds.UserID] = *creds
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.profiles, userID)
	delete(s.subscriptions, userID)
	delete(s.credentials, userID)
	return nil
}

func (s *Store) Close(context.Context) error { return nil }
