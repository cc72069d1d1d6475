package store

import (
	"errors"
	"fmt"

	"github.com/yz174/kliq/pkg/live"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

func (s *Store) GetMembership(convID, userID string) (models.Membership, error) {
	var m models.Membership
	if err := s.getJSON(keys.GenMembershipKey(convID, userID), &m); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Membership{}, fmt.Errorf("membership %s/%s: %w", convID, userID, models.ErrNotFound)
		}
		return models.Membership{}, err
	}
	return m, nil
}

func (s *Store) IsMember(convID, userID string) (bool, error) {
	return s.has(keys.GenMembershipKey(convID, userID))
}

// ListMembers returns the memberships of a conversation in key order.
func (s *Store) ListMembers(convID string) ([]models.Membership, error) {
	var out []models.Membership
	err := s.scanPrefix(keys.GenMembershipPrefix(convID), func(_, v []byte) (bool, error) {
		var m models.Membership
		if err := decode(v, &m); err != nil {
			return false, err
		}
		out = append(out, m)
		return true, nil
	})
	return out, err
}

func (s *Store) ListUserConversationIDs(userID string) ([]string, error) {
	var out []string
	err := s.scanPrefix(keys.GenUserConversationPrefix(userID), func(k, _ []byte) (bool, error) {
		cid, err := keys.ParseUserConversationIndex(string(k))
		if err != nil {
			return false, err
		}
		out = append(out, cid)
		return true, nil
	})
	return out, err
}

// AddMember joins userID to the conversation and records sys, a system
// message announcing it, in the same write.
func (s *Store) AddMember(convID, userID string, sys models.Message) (models.Message, error) {
	unlock := s.locks.lock("c:" + convID)
	defer unlock()

	conv, err := s.GetConversation(convID)
	if err != nil {
		return models.Message{}, err
	}
	ok, err := s.IsMember(convID, userID)
	if err != nil {
		return models.Message{}, err
	}
	if ok {
		return models.Message{}, fmt.Errorf("user %s already in %s: %w", userID, convID, models.ErrConflict)
	}

	b := s.newBatch()
	if err := putMembership(b, models.Membership{ConversationID: convID, UserID: userID, JoinedTS: s.now()}); err != nil {
		b.Close()
		return models.Message{}, err
	}
	msg, _, err := s.stageMessage(b, &conv, sys, nil)
	if err != nil {
		b.Close()
		return models.Message{}, err
	}
	topics, err := s.conversationTopics(convID, userID)
	if err != nil {
		b.Close()
		return models.Message{}, err
	}
	if err := s.commit(b, topics...); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// RemoveMember records sys and drops userID's membership. When nobody is
// left the conversation is deleted outright; the returned count is the
// number of remaining members.
func (s *Store) RemoveMember(convID, userID string, sys models.Message) (int, error) {
	unlock := s.locks.lock("c:" + convID)
	defer unlock()

	conv, err := s.GetConversation(convID)
	if err != nil {
		return 0, err
	}
	ok, err := s.IsMember(convID, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	topics, err := s.conversationTopics(convID)
	if err != nil {
		return 0, err
	}

	b := s.newBatch()
	if _, _, err := s.stageMessage(b, &conv, sys, nil); err != nil {
		b.Close()
		return 0, err
	}
	if err := b.Delete([]byte(keys.GenMembershipKey(convID, userID)), nil); err != nil {
		b.Close()
		return 0, err
	}
	if err := b.Delete([]byte(keys.GenUserConversationIndex(userID, convID)), nil); err != nil {
		b.Close()
		return 0, err
	}
	if err := b.Delete([]byte(keys.GenTypingKey(convID, userID)), nil); err != nil {
		b.Close()
		return 0, err
	}
	if err := s.commit(b, topics...); err != nil {
		return 0, err
	}

	members, err := s.ListMembers(convID)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, s.deleteConversationLocked(convID)
	}
	return len(members), nil
}

// AdvanceReadCursor moves the member's read cursor to msgID unless it
// already points at a message that is at least as new. It is a no-op for
// non-members and fails with ErrNotFound when msgID is not a message of
// the conversation.
func (s *Store) AdvanceReadCursor(convID, userID, msgID string) (bool, error) {
	unlockConv := s.locks.lock("c:" + convID)
	defer unlockConv()
	unlock := s.locks.lock("mb:" + convID + ":" + userID)
	defer unlock()

	m, err := s.GetMembership(convID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	target, err := s.GetMessage(msgID)
	if err != nil {
		return false, err
	}
	if target.ConversationID != convID {
		return false, fmt.Errorf("message %s in %s: %w", msgID, convID, models.ErrNotFound)
	}
	if m.LastReadMessageID == msgID {
		return false, nil
	}
	if m.LastReadMessageID != "" {
		current, err := s.GetMessage(m.LastReadMessageID)
		if err == nil && current.CreatedTS >= target.CreatedTS {
			return false, nil
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return false, err
		}
	}

	m.LastReadMessageID = msgID
	b := s.newBatch()
	if err := setJSON(b, keys.GenMembershipKey(convID, userID), m); err != nil {
		b.Close()
		return false, err
	}
	if err := s.commit(b, live.ConversationsTopic(userID)); err != nil {
		return false, err
	}
	return true, nil
}

// conversationTopics returns the message topic plus the conversation list
// topic of every current member and of extra users.
func (s *Store) conversationTopics(convID string, extra ...string) ([]string, error) {
	members, err := s.ListMembers(convID)
	if err != nil {
		return nil, err
	}
	topics := []string{live.MessagesTopic(convID)}
	for _, m := range members {
		topics = append(topics, live.ConversationsTopic(m.UserID))
	}
	for _, u := range extra {
		topics = append(topics, live.ConversationsTopic(u))
	}
	return topics, nil
}
