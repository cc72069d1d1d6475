package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/pebble"

	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

func (s *Store) GetConversation(convID string) (models.Conversation, error) {
	var c models.Conversation
	if err := s.getJSON(keys.GenConversationKey(convID), &c); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Conversation{}, fmt.Errorf("conversation %s: %w", convID, models.ErrNotFound)
		}
		return models.Conversation{}, err
	}
	return c, nil
}

// CreateConversation writes the conversation with one membership per
// member. Every member must be a known user.
func (s *Store) CreateConversation(conv models.Conversation, memberIDs []string) (models.Conversation, error) {
	if conv.ID == "" {
		conv.ID = keys.NewID()
	}
	if conv.CreatedTS == 0 {
		conv.CreatedTS = s.now()
	}
	for _, id := range memberIDs {
		if _, err := s.GetUser(id); err != nil {
			return models.Conversation{}, err
		}
	}

	b := s.newBatch()
	if err := setJSON(b, keys.GenConversationKey(conv.ID), conv); err != nil {
		b.Close()
		return models.Conversation{}, err
	}
	topics := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		m := models.Membership{ConversationID: conv.ID, UserID: id, JoinedTS: conv.CreatedTS}
		if err := putMembership(b, m); err != nil {
			b.Close()
			return models.Conversation{}, err
		}
		topics = append(topics, live.ConversationsTopic(id))
	}
	if err := s.commit(b, topics...); err != nil {
		return models.Conversation{}, err
	}
	logger.Debug("conversation_created", "conversation_id", conv.ID, "kind", conv.Kind, "members", len(memberIDs))
	return conv, nil
}

// GetOrCreateDirect returns the direct conversation between a and b,
// creating it when none exists. Concurrent calls for the same pair
// converge on one conversation.
func (s *Store) GetOrCreateDirect(a, b string) (models.Conversation, bool, error) {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	unlock := s.locks.lock("dm:" + lo + ":" + hi)
	defer unlock()

	conv, found, err := s.FindDirect(a, b)
	if err != nil || found {
		return conv, false, err
	}
	conv, err = s.CreateConversation(models.Conversation{Kind: models.KindDirect, CreatedBy: a}, []string{a, b})
	if err != nil {
		return models.Conversation{}, false, err
	}
	return conv, true, nil
}

// FindDirect looks up the direct conversation whose members are a and b.
func (s *Store) FindDirect(a, b string) (models.Conversation, bool, error) {
	convIDs, err := s.ListUserConversationIDs(a)
	if err != nil {
		return models.Conversation{}, false, err
	}
	for _, cid := range convIDs {
		conv, err := s.GetConversation(cid)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return models.Conversation{}, false, err
		}
		if conv.Kind != models.KindDirect {
			continue
		}
		ok, err := s.IsMember(cid, b)
		if err != nil {
			return models.Conversation{}, false, err
		}
		if ok {
			return conv, true, nil
		}
	}
	return models.Conversation{}, false, nil
}

// ListUserConversations returns the user's conversations, most recently
// active first.
func (s *Store) ListUserConversations(userID string) ([]models.Conversation, error) {
	convIDs, err := s.ListUserConversationIDs(userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(convIDs))
	for _, cid := range convIDs {
		conv, err := s.GetConversation(cid)
		if errors.Is(err, models.ErrNotFound) {
			logger.Warn("dangling_conversation_index", "user_id", userID, "conversation_id", cid)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ActivityTS() > out[j].ActivityTS() })
	return out, nil
}

// DeleteConversation hard-deletes the conversation and everything hanging
// off it: messages, reactions, artifacts, typing rows and memberships.
func (s *Store) DeleteConversation(convID string) error {
	unlock := s.locks.lock("c:" + convID)
	defer unlock()
	return s.deleteConversationLocked(convID)
}

func (s *Store) deleteConversationLocked(convID string) error {
	members, err := s.ListMembers(convID)
	if err != nil {
		return err
	}
	b := s.newBatch()
	var msgs int
	err = s.scanPrefix(keys.GenConversationMsgPrefix(convID), func(_, v []byte) (bool, error) {
		msgID, _, err := keys.ParseIndexValue(v)
		if err != nil {
			return false, err
		}
		msgs++
		if err := b.Delete([]byte(keys.GenMessageKey(msgID)), nil); err != nil {
			return false, err
		}
		return true, deletePrefix(b, keys.GenReactionPrefix(msgID))
	})
	if err != nil {
		b.Close()
		return err
	}
	topics := []string{live.MessagesTopic(convID), live.TypingTopic(convID)}
	for _, m := range members {
		if err := b.Delete([]byte(keys.GenUserConversationIndex(m.UserID, convID)), nil); err != nil {
			b.Close()
			return err
		}
		topics = append(topics, live.ConversationsTopic(m.UserID))
	}
	for _, prefix := range []string{
		keys.GenConversationMsgPrefix(convID),
		keys.GenArtifactConversationPrefix(convID),
		keys.GenTypingPrefix(convID),
		keys.GenMembershipPrefix(convID),
	} {
		if err := deletePrefix(b, prefix); err != nil {
			b.Close()
			return err
		}
	}
	if err := b.Delete([]byte(keys.GenConversationKey(convID)), nil); err != nil {
		b.Close()
		return err
	}
	if err := s.commit(b, topics...); err != nil {
		return err
	}
	logger.Info("conversation_deleted", "conversation_id", convID, "messages", msgs)
	return nil
}

func putMembership(b *pebble.Batch, m models.Membership) error {
	if err := setJSON(b, keys.GenMembershipKey(m.ConversationID, m.UserID), m); err != nil {
		return err
	}
	return b.Set([]byte(keys.GenUserConversationIndex(m.UserID, m.ConversationID)), nil, nil)
}
