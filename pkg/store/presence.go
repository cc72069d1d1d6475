package store

import (
	"errors"

	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

// SetPresence records the user's online flag with LastSeenTS = now.
// Concurrent writers race; the last commit wins.
func (s *Store) SetPresence(userID string, online bool) (models.Presence, error) {
	p := models.Presence{UserID: userID, IsOnline: online, LastSeenTS: s.now()}
	b := s.newBatch()
	if err := setJSON(b, keys.GenPresenceKey(userID), p); err != nil {
		b.Close()
		return models.Presence{}, err
	}
	if err := s.commit(b, live.PresenceTopic(userID)); err != nil {
		return models.Presence{}, err
	}
	return p, nil
}

// GetPresence returns the stored presence and whether one exists.
func (s *Store) GetPresence(userID string) (models.Presence, bool, error) {
	var p models.Presence
	err := s.getJSON(keys.GenPresenceKey(userID), &p)
	if errors.Is(err, models.ErrNotFound) {
		return models.Presence{UserID: userID}, false, nil
	}
	if err != nil {
		return models.Presence{}, false, err
	}
	return p, true, nil
}

// SetTyping upserts (typing) or removes the user's typing row.
func (s *Store) SetTyping(convID, userID string, typing bool) error {
	key := keys.GenTypingKey(convID, userID)
	b := s.newBatch()
	var err error
	if typing {
		err = setJSON(b, key, models.Typing{ConversationID: convID, UserID: userID, LastTypedTS: s.now()})
	} else {
		err = b.Delete([]byte(key), nil)
	}
	if err != nil {
		b.Close()
		return err
	}
	return s.commit(b, live.TypingTopic(convID))
}

// ListTyping returns every typing row of the conversation, stale or not.
func (s *Store) ListTyping(convID string) ([]models.Typing, error) {
	var out []models.Typing
	err := s.scanPrefix(keys.GenTypingPrefix(convID), func(_, v []byte) (bool, error) {
		var t models.Typing
		if err := decode(v, &t); err != nil {
			return false, err
		}
		out = append(out, t)
		return true, nil
	})
	return out, err
}

// PruneTyping deletes up to limit typing rows last touched before cutoff.
// With dryRun set it only counts them.
func (s *Store) PruneTyping(cutoff int64, limit int, dryRun bool) (int, error) {
	var stale []models.Typing
	err := s.scanPrefix(keys.TypingAllPrefix, func(_, v []byte) (bool, error) {
		var t models.Typing
		if err := decode(v, &t); err != nil {
			return false, err
		}
		if t.LastTypedTS < cutoff {
			stale = append(stale, t)
		}
		return limit <= 0 || len(stale) < limit, nil
	})
	if err != nil || dryRun || len(stale) == 0 {
		return len(stale), err
	}
	b := s.newBatch()
	topics := make([]string, 0, len(stale))
	for _, t := range stale {
		if err := b.Delete([]byte(keys.GenTypingKey(t.ConversationID, t.UserID)), nil); err != nil {
			b.Close()
			return 0, err
		}
		topics = append(topics, live.TypingTopic(t.ConversationID))
	}
	if err := s.commit(b, topics...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
