// Package messaging sends, deletes and lists messages and reactions.
package messaging

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yz174/kliq/pkg/ai/commands"
	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/telemetry"
)

type Store interface {
	IsMember(convID, userID string) (bool, error)
	InsertMessage(msg models.Message, jobs []models.Job) (models.Message, []models.Job, error)
	GetMessage(msgID string) (models.Message, error)
	SoftDeleteMessage(msgID string) (models.Message, error)
	ListMessages(convID string) ([]models.Message, error)
	ListReactions(msgID string) ([]models.Reaction, error)
	ToggleReaction(msgID, userID, emoji string) (bool, error)
	GetUsers(ids []string) (map[string]models.User, error)
}

// Dispatcher hands persisted jobs to the background workers.
type Dispatcher interface {
	Dispatch(jobs ...models.Job)
}

type Service struct {
	store     Store
	jobs      Dispatcher
	maxLength int
}

// New returns a service; maxLength <= 0 disables the length check and a
// nil dispatcher leaves jobs for the recovery sweep.
func New(s Store, d Dispatcher, maxLength int) *Service {
	return &Service{store: s, jobs: d, maxLength: maxLength}
}

func (s *Service) requireMember(convID, userID string) error {
	ok, err := s.store.IsMember(convID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	return nil
}

// SendMessage stores text from senderID. The embed job, and the ai job
// when the text is an assist command, are written with the message and
// dispatched without waiting.
func (s *Service) SendMessage(_ context.Context, convID, senderID, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, fmt.Errorf("empty message: %w", models.ErrInvalidArgument)
	}
	if s.maxLength > 0 && utf8.RuneCountInString(text) > s.maxLength {
		return models.Message{}, fmt.Errorf("message longer than %d characters: %w", s.maxLength, models.ErrInvalidArgument)
	}
	if err := s.requireMember(convID, senderID); err != nil {
		return models.Message{}, err
	}

	jobs := []models.Job{{Kind: models.JobEmbed}}
	if cmd := commands.Detect(text); cmd != commands.None {
		jobs = append(jobs, models.Job{Kind: models.JobAI, UserID: senderID, Command: cmd})
	}
	msg, jobs, err := s.store.InsertMessage(models.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        text,
		Kind:           models.MessageUser,
	}, jobs)
	if err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesSent.WithLabelValues(string(msg.Kind)).Inc()
	logger.Debug("message_sent", "conversation_id", convID, "message_id", msg.ID, "jobs", len(jobs))
	if s.jobs != nil {
		s.jobs.Dispatch(jobs...)
	}
	return msg, nil
}

// DeleteMessage soft-deletes a message. Only the sender may delete it.
func (s *Service) DeleteMessage(_ context.Context, msgID, requesterID string) error {
	m, err := s.store.GetMessage(msgID)
	if err != nil {
		return err
	}
	if m.SenderID != requesterID {
		return fmt.Errorf("user %s did not send %s: %w", requesterID, msgID, models.ErrUnauthorized)
	}
	if m.Deleted {
		return nil
	}
	_, err = s.store.SoftDeleteMessage(msgID)
	return err
}

// GetMessages lists the conversation oldest first with senders and
// reactions resolved.
func (s *Service) GetMessages(_ context.Context, convID, userID string) ([]MessageView, error) {
	if err := s.requireMember(convID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(convID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID)
	}
	users, err := s.store.GetUsers(ids)
	if err != nil {
		return nil, err
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		rs, err := s.store.ListReactions(m.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, newView(m, users, rs))
	}
	return out, nil
}

// GetMessage returns one message view visible to userID.
func (s *Service) GetMessage(_ context.Context, msgID, userID string) (MessageView, error) {
	m, err := s.store.GetMessage(msgID)
	if err != nil {
		return MessageView{}, err
	}
	if err := s.requireMember(m.ConversationID, userID); err != nil {
		return MessageView{}, err
	}
	users, err := s.store.GetUsers([]string{m.SenderID})
	if err != nil {
		return MessageView{}, err
	}
	rs, err := s.store.ListReactions(m.ID)
	if err != nil {
		return MessageView{}, err
	}
	return newView(m, users, rs), nil
}

// ToggleReaction flips userID's emoji reaction on a message and reports
// whether it is now present.
func (s *Service) ToggleReaction(_ context.Context, msgID, userID, emoji string) (bool, error) {
	if !models.IsAllowedEmoji(emoji) {
		return false, fmt.Errorf("emoji %q: %w", emoji, models.ErrInvalidArgument)
	}
	m, err := s.store.GetMessage(msgID)
	if err != nil {
		return false, err
	}
	if err := s.requireMember(m.ConversationID, userID); err != nil {
		return false, err
	}
	return s.store.ToggleReaction(msgID, userID, emoji)
}
