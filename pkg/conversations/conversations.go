// Package conversations manages direct and group conversations, their
// membership and per-member unread state.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yz174/kliq/pkg/logger"
	"github.com/yz174/kliq/pkg/messaging"
	"github.com/yz174/kliq/pkg/models"
)

type Store interface {
	GetUser(userID string) (models.User, error)
	GetUsers(ids []string) (map[string]models.User, error)
	GetConversation(convID string) (models.Conversation, error)
	CreateConversation(conv models.Conversation, memberIDs []string) (models.Conversation, error)
	GetOrCreateDirect(a, b string) (models.Conversation, bool, error)
	ListUserConversations(userID string) ([]models.Conversation, error)
	ListMembers(convID string) ([]models.Membership, error)
	GetMembership(convID, userID string) (models.Membership, error)
	IsMember(convID, userID string) (bool, error)
	AddMember(convID, userID string, sys models.Message) (models.Message, error)
	RemoveMember(convID, userID string, sys models.Message) (int, error)
	AdvanceReadCursor(convID, userID, msgID string) (bool, error)
	GetMessage(msgID string) (models.Message, error)
	CountUnread(convID, userID string, afterTS int64) (int, error)
}

type Service struct {
	store Store
}

func New(s Store) *Service { return &Service{store: s} }

// GetUserConversations lists userID's conversations, most recently
// active first.
func (s *Service) GetUserConversations(_ context.Context, userID string) ([]View, error) {
	convs, err := s.store.ListUserConversations(userID)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(convs))
	for _, c := range convs {
		v, err := s.view(c, userID)
		if errors.Is(err, models.ErrNotFound) {
			// membership vanished between listing and reading
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// GetConversation returns one conversation for a member.
func (s *Service) GetConversation(_ context.Context, convID, userID string) (View, error) {
	c, err := s.store.GetConversation(convID)
	if err != nil {
		return View{}, err
	}
	v, err := s.view(c, userID)
	if errors.Is(err, models.ErrNotFound) {
		return View{}, fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	return v, err
}

// GetOrCreateDirect returns the direct conversation between userID and
// otherID, creating it on first use.
func (s *Service) GetOrCreateDirect(_ context.Context, userID, otherID string) (View, bool, error) {
	if userID == otherID {
		return View{}, false, fmt.Errorf("direct conversation with yourself: %w", models.ErrInvalidArgument)
	}
	if _, err := s.store.GetUser(otherID); err != nil {
		return View{}, false, err
	}
	c, created, err := s.store.GetOrCreateDirect(userID, otherID)
	if err != nil {
		return View{}, false, err
	}
	v, err := s.view(c, userID)
	return v, created, err
}

// CreateGroup creates a named group containing the creator and memberIDs.
func (s *Service) CreateGroup(_ context.Context, name string, memberIDs []string, creatorID string) (View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return View{}, fmt.Errorf("group name required: %w", models.ErrInvalidArgument)
	}
	seen := map[string]bool{creatorID: true}
	ids := []string{creatorID}
	for _, id := range memberIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	c, err := s.store.CreateConversation(models.Conversation{Kind: models.KindGroup, Name: name, CreatedBy: creatorID}, ids)
	if err != nil {
		return View{}, err
	}
	logger.Info("group_created", "conversation_id", c.ID, "creator", creatorID, "members", len(ids))
	return s.view(c, creatorID)
}

// MarkAsRead advances userID's read cursor to msgID. Non-members are
// ignored and the cursor never moves backwards.
func (s *Service) MarkAsRead(_ context.Context, convID, userID, msgID string) error {
	_, err := s.store.AdvanceReadCursor(convID, userID, msgID)
	return err
}

// AddMember adds userID to a group on behalf of addedBy, a member.
func (s *Service) AddMember(_ context.Context, convID, userID, addedBy string) error {
	c, err := s.store.GetConversation(convID)
	if err != nil {
		return err
	}
	if c.Kind == models.KindDirect {
		return fmt.Errorf("cannot add members to direct conversation %s: %w", convID, models.ErrInvalidState)
	}
	ok, err := s.store.IsMember(convID, addedBy)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s not in %s: %w", addedBy, convID, models.ErrUnauthorized)
	}
	added, err := s.store.GetUser(userID)
	if err != nil {
		return err
	}
	actor := s.nameOf(addedBy, "Someone")
	_, err = s.store.AddMember(convID, userID, models.Message{
		SenderID: addedBy,
		Kind:     models.MessageSystem,
		Content:  fmt.Sprintf("%s added %s to the group", actor, added.Name),
	})
	return err
}

// LeaveGroup removes userID. The last member leaving deletes the
// conversation and everything in it.
func (s *Service) LeaveGroup(_ context.Context, convID, userID string) error {
	if _, err := s.store.GetConversation(convID); err != nil {
		return err
	}
	remaining, err := s.store.RemoveMember(convID, userID, models.Message{
		SenderID: userID,
		Kind:     models.MessageSystem,
		Content:  s.nameOf(userID, "Someone") + " left the group",
	})
	if err != nil {
		return err
	}
	logger.Info("member_left", "conversation_id", convID, "user_id", userID, "remaining", remaining)
	return nil
}

func (s *Service) nameOf(userID, fallback string) string {
	u, err := s.store.GetUser(userID)
	if err != nil || u.Name == "" {
		return fallback
	}
	return u.Name
}

// view builds the member-specific view; ErrNotFound means userID is not
// a member.
func (s *Service) view(c models.Conversation, userID string) (View, error) {
	mb, err := s.store.GetMembership(c.ID, userID)
	if err != nil {
		return View{}, err
	}
	members, err := s.store.ListMembers(c.ID)
	if err != nil {
		return View{}, err
	}
	ids := make([]string, 0, len(members)+1)
	for _, m := range members {
		ids = append(ids, m.UserID)
	}

	var last *models.Message
	if c.LastMessageID != "" {
		m, err := s.store.GetMessage(c.LastMessageID)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return View{}, err
		}
		if err == nil {
			last = &m
			ids = append(ids, m.SenderID)
		}
	}
	users, err := s.store.GetUsers(ids)
	if err != nil {
		return View{}, err
	}

	unread, err := s.unread(c.ID, userID, mb.LastReadMessageID)
	if err != nil {
		return View{}, err
	}

	v := View{
		ID:                c.ID,
		Kind:              c.Kind,
		Name:              c.Name,
		CreatedBy:         c.CreatedBy,
		CreatedTS:         c.CreatedTS,
		ActivityTS:        c.ActivityTS(),
		Members:           make([]messaging.UserSummary, 0, len(members)),
		UnreadCount:       unread,
		LastReadMessageID: mb.LastReadMessageID,
	}
	for _, m := range members {
		v.Members = append(v.Members, messaging.Summarize(m.UserID, users))
	}
	if last != nil {
		v.LastMessage = &LastMessage{
			ID:        last.ID,
			Sender:    messaging.Summarize(last.SenderID, users),
			Content:   last.DisplayContent(),
			Kind:      last.Kind,
			Deleted:   last.Deleted,
			CreatedTS: last.CreatedTS,
		}
	}
	return v, nil
}

// unread counts messages from others after the read cursor. A cursor
// pointing at a vanished message counts from the start.
func (s *Service) unread(convID, userID, lastReadID string) (int, error) {
	var after int64
	if lastReadID != "" {
		m, err := s.store.GetMessage(lastReadID)
		switch {
		case err == nil:
			after = m.CreatedTS
		case !errors.Is(err, models.ErrNotFound):
			return 0, err
		}
	}
	return s.store.CountUnread(convID, userID, after)
}
