package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

// UserProfile carries the identity provider's view of a user.
type UserProfile struct {
	ExternalID string
	Name       string
	Email      string
	AvatarURL  string
}

// UpsertUser creates the user for an external id, or patches the profile
// fields of the existing one. New users start offline.
func (s *Store) UpsertUser(p UserProfile) (models.User, bool, error) {
	unlock := s.locks.lock("ext:" + p.ExternalID)
	defer unlock()

	existing, err := s.GetUserByExternalID(p.ExternalID)
	switch {
	case err == nil:
		existing.Name = p.Name
		existing.Email = p.Email
		existing.AvatarURL = p.AvatarURL
		b := s.newBatch()
		if err := setJSON(b, keys.GenUserKey(existing.ID), existing); err != nil {
			b.Close()
			return models.User{}, false, err
		}
		topics, err := s.userAudienceTopics(existing.ID)
		if err != nil {
			b.Close()
			return models.User{}, false, err
		}
		if err := s.commit(b, topics...); err != nil {
			return models.User{}, false, err
		}
		return existing, false, nil
	case !errors.Is(err, models.ErrNotFound):
		return models.User{}, false, err
	}

	now := s.now()
	u := models.User{
		ID:         keys.NewID(),
		ExternalID: p.ExternalID,
		Name:       p.Name,
		Email:      p.Email,
		AvatarURL:  p.AvatarURL,
		CreatedTS:  now,
	}
	b := s.newBatch()
	if err := setJSON(b, keys.GenUserKey(u.ID), u); err != nil {
		b.Close()
		return models.User{}, false, err
	}
	if err := b.Set([]byte(keys.GenUserExternalIndex(u.ExternalID)), []byte(u.ID), nil); err != nil {
		b.Close()
		return models.User{}, false, err
	}
	if err := setJSON(b, keys.GenPresenceKey(u.ID), models.Presence{UserID: u.ID, LastSeenTS: now}); err != nil {
		b.Close()
		return models.User{}, false, err
	}
	if err := s.commit(b, live.PresenceTopic(u.ID)); err != nil {
		return models.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) GetUser(userID string) (models.User, error) {
	var u models.User
	if err := s.getJSON(keys.GenUserKey(userID), &u); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.User{}, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) GetUserByExternalID(externalID string) (models.User, error) {
	id, err := s.getRaw(keys.GenUserExternalIndex(externalID))
	if err != nil {
		return models.User{}, err
	}
	return s.GetUser(string(id))
}

// ListUsers returns every user except excludeID, ordered by name.
func (s *Store) ListUsers(excludeID string) ([]models.User, error) {
	var out []models.User
	err := s.scanPrefix(keys.UserPrefix, func(_, v []byte) (bool, error) {
		var u models.User
		if err := decode(v, &u); err != nil {
			return false, err
		}
		if u.ID != excludeID {
			out = append(out, u)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetUsers loads the given ids; unknown ids are absent from the result.
func (s *Store) GetUsers(ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		u, err := s.GetUser(id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = u
	}
	return out, nil
}

// userAudienceTopics lists the topics whose views render this user's
// profile: their conversations and every co-member's conversation list.
func (s *Store) userAudienceTopics(userID string) ([]string, error) {
	convIDs, err := s.ListUserConversationIDs(userID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	topics := []string{live.PresenceTopic(userID)}
	for _, cid := range convIDs {
		topics = append(topics, live.MessagesTopic(cid))
		members, err := s.ListMembers(cid)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if !seen[m.UserID] {
				seen[m.UserID] = true
				topics = append(topics, live.ConversationsTopic(m.UserID))
			}
		}
	}
	return topics, nil
}
