// Package users registers identities from the auth provider and serves
// profile reads.
package users

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store"
	"github.com/yz174/kliq/pkg/store/keys"
)

const maxNameLength = 200

type Store interface {
	UpsertUser(p store.UserProfile) (models.User, bool, error)
	GetUser(userID string) (models.User, error)
	ListUsers(excludeID string) ([]models.User, error)
	GetUsers(ids []string) (map[string]models.User, error)
}

type Service struct {
	store Store
}

func New(s Store) *Service { return &Service{store: s} }

// Upsert creates or refreshes the user behind an external identity.
func (s *Service) Upsert(_ context.Context, p store.UserProfile) (models.User, bool, error) {
	p.ExternalID = strings.TrimSpace(p.ExternalID)
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	p.AvatarURL = strings.TrimSpace(p.AvatarURL)
	if err := keys.ValidateID(p.ExternalID); err != nil {
		return models.User{}, false, fmt.Errorf("external id: %v: %w", err, models.ErrInvalidArgument)
	}
	if p.Name == "" {
		return models.User{}, false, fmt.Errorf("name is required: %w", models.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(p.Name) > maxNameLength {
		return models.User{}, false, fmt.Errorf("name too long: %w", models.ErrInvalidArgument)
	}
	u, created, err := s.store.UpsertUser(p)
	if err != nil {
		return models.User{}, false, err
	}
	if created {
		logger.Info("user_created", "user", u.ID, "external_id", u.ExternalID)
	}
	return u, created, nil
}

func (s *Service) Get(_ context.Context, userID string) (models.User, error) {
	return s.store.GetUser(userID)
}

// List returns every user except excludeID, ordered by name.
func (s *Service) List(_ context.Context, excludeID string) ([]models.User, error) {
	return s.store.ListUsers(excludeID)
}

// GetMany resolves ids in request order, skipping unknown ones.
func (s *Service) GetMany(_ context.Context, ids []string) ([]models.User, error) {
	found, err := s.store.GetUsers(ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(found))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if u, ok := found[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
