package store

import (
	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

// ToggleReaction adds the reaction if absent and removes it otherwise.
// It reports whether the reaction is now present.
func (s *Store) ToggleReaction(msgID, userID, emoji string) (bool, error) {
	before, err := s.GetMessage(msgID)
	if err != nil {
		return false, err
	}
	unlockConv := s.locks.lock("c:" + before.ConversationID)
	defer unlockConv()
	unlock := s.locks.lock("r:" + msgID + ":" + userID + ":" + emoji)
	defer unlock()

	msg, err := s.GetMessage(msgID)
	if err != nil {
		return false, err
	}
	key := keys.GenReactionKey(msgID, userID, emoji)
	exists, err := s.has(key)
	if err != nil {
		return false, err
	}
	b := s.newBatch()
	if exists {
		err = b.Delete([]byte(key), nil)
	} else {
		err = setJSON(b, key, models.Reaction{MessageID: msgID, UserID: userID, Emoji: emoji})
	}
	if err != nil {
		b.Close()
		return false, err
	}
	if err := s.commit(b, live.MessagesTopic(msg.ConversationID)); err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *Store) ListReactions(msgID string) ([]models.Reaction, error) {
	var out []models.Reaction
	err := s.scanPrefix(keys.GenReactionPrefix(msgID), func(_, v []byte) (bool, error) {
		var r models.Reaction
		if err := decode(v, &r); err != nil {
			return false, err
		}
		out = append(out, r)
		return true, nil
	})
	return out, err
}
