package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/store/keys"
)

// InsertMessage appends msg to its conversation and persists jobs in the
// same write. CreatedTS is assigned here and is strictly increasing per
// conversation even when the wall clock is not.
func (s *Store) InsertMessage(msg models.Message, jobs []models.Job) (models.Message, []models.Job, error) {
	unlock := s.locks.lock("c:" + msg.ConversationID)
	defer unlock()

	conv, err := s.GetConversation(msg.ConversationID)
	if err != nil {
		return models.Message{}, nil, err
	}
	topics, err := s.conversationTopics(conv.ID)
	if err != nil {
		return models.Message{}, nil, err
	}
	b := s.newBatch()
	msg, jobs, err = s.stageMessage(b, &conv, msg, jobs)
	if err != nil {
		b.Close()
		return models.Message{}, nil, err
	}
	if err := s.commit(b, topics...); err != nil {
		return models.Message{}, nil, err
	}
	return msg, jobs, nil
}

// stageMessage writes the message, its index entry, the patched
// conversation summary and any jobs into b. The caller holds the
// conversation lock.
func (s *Store) stageMessage(b *pebble.Batch, conv *models.Conversation, msg models.Message, jobs []models.Job) (models.Message, []models.Job, error) {
	if msg.ID == "" {
		msg.ID = keys.NewID()
	}
	if msg.Kind == "" {
		msg.Kind = models.MessageUser
	}
	msg.ConversationID = conv.ID
	ts := s.now()
	if ts <= conv.LastMessageTS {
		ts = conv.LastMessageTS + 1
	}
	msg.CreatedTS = ts
	msg.Seq = conv.LastSeq + 1

	if err := setJSON(b, keys.GenMessageKey(msg.ID), msg); err != nil {
		return models.Message{}, nil, err
	}
	idx := keys.GenConversationMsgIndex(conv.ID, msg.CreatedTS, msg.Seq)
	if err := b.Set([]byte(idx), []byte(keys.GenIndexValue(msg.ID, msg.SenderID)), nil); err != nil {
		return models.Message{}, nil, err
	}
	conv.LastMessageID = msg.ID
	conv.LastMessageTS = msg.CreatedTS
	conv.LastSeq = msg.Seq
	if err := setJSON(b, keys.GenConversationKey(conv.ID), conv); err != nil {
		return models.Message{}, nil, err
	}

	staged := make([]models.Job, 0, len(jobs))
	for _, j := range jobs {
		j.Seq = s.jobSeq.Add(1)
		j.MessageID = msg.ID
		j.ConversationID = conv.ID
		j.CreatedTS = msg.CreatedTS
		if err := setJSON(b, keys.GenJobKey(j.Seq), j); err != nil {
			return models.Message{}, nil, err
		}
		staged = append(staged, j)
	}
	return msg, staged, nil
}

func (s *Store) GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	if err := s.getJSON(keys.GenMessageKey(msgID), &m); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Message{}, fmt.Errorf("message %s: %w", msgID, models.ErrNotFound)
		}
		return models.Message{}, err
	}
	return m, nil
}

// SoftDeleteMessage flags the message as deleted. The content is kept
// but never rendered.
func (s *Store) SoftDeleteMessage(msgID string) (models.Message, error) {
	return s.patchMessage(msgID, true, func(m *models.Message) { m.Deleted = true })
}

// SetMessageEmbedding stores the message's embedding vector.
func (s *Store) SetMessageEmbedding(msgID string, vec []float32) error {
	_, err := s.patchMessage(msgID, false, func(m *models.Message) { m.Embedding = vec })
	return err
}

// patchMessage rewrites a message under its conversation lock, so a
// conversation purge either sees the patch or the patch sees NotFound.
func (s *Store) patchMessage(msgID string, notify bool, fn func(*models.Message)) (models.Message, error) {
	before, err := s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	unlockConv := s.locks.lock("c:" + before.ConversationID)
	defer unlockConv()
	unlock := s.locks.lock("m:" + msgID)
	defer unlock()

	m, err := s.GetMessage(msgID)
	if err != nil {
		return models.Message{}, err
	}
	fn(&m)
	var topics []string
	if notify {
		if topics, err = s.conversationTopics(m.ConversationID); err != nil {
			return models.Message{}, err
		}
	}
	b := s.newBatch()
	if err := setJSON(b, keys.GenMessageKey(msgID), m); err != nil {
		b.Close()
		return models.Message{}, err
	}
	if err := s.commit(b, topics...); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// ListMessages returns every message of the conversation, oldest first.
func (s *Store) ListMessages(convID string) ([]models.Message, error) {
	var out []models.Message
	err := s.scanPrefix(keys.GenConversationMsgPrefix(convID), func(_, v []byte) (bool, error) {
		m, err := s.messageFromIndex(v)
		if err != nil {
			return false, err
		}
		out = append(out, m)
		return true, nil
	})
	return out, err
}

// LatestMessages walks the conversation newest first and returns up to
// limit messages accepted by keep, oldest first. A nil keep accepts all.
func (s *Store) LatestMessages(convID string, limit int, keep func(models.Message) bool) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	prefix := keys.GenConversationMsgPrefix(convID)
	var out []models.Message
	err := s.scanReverse([]byte(prefix), keys.UpperBound(prefix), func(_, v []byte) (bool, error) {
		m, err := s.messageFromIndex(v)
		if err != nil {
			return false, err
		}
		if keep == nil || keep(m) {
			out = append(out, m)
		}
		return len(out) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountUnread counts messages not sent by userID that are newer than
// afterTS. A zero afterTS counts the whole conversation.
func (s *Store) CountUnread(convID, userID string, afterTS int64) (int, error) {
	prefix := keys.GenConversationMsgPrefix(convID)
	lower := []byte(prefix)
	if afterTS > 0 {
		lower = []byte(keys.GenConversationMsgIndex(convID, afterTS+1, 0))
	}
	n := 0
	err := s.scan(lower, keys.UpperBound(prefix), func(_, v []byte) (bool, error) {
		_, sender, err := keys.ParseIndexValue(v)
		if err != nil {
			return false, err
		}
		if sender != userID {
			n++
		}
		return true, nil
	})
	return n, err
}

func (s *Store) messageFromIndex(v []byte) (models.Message, error) {
	msgID, _, err := keys.ParseIndexValue(v)
	if err != nil {
		return models.Message{}, err
	}
	return s.GetMessage(msgID)
}

