// Package presence tracks online state and typing indicators. Typing
// rows carry a timestamp and are judged against the window at read time;
// nothing expires them in the background besides retention.
package presence

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yz174/kliq/pkg/models"
	"github.com/yz174/kliq/pkg/timeutil"
)

type Store interface {
	SetPresence(userID string, online bool) (models.Presence, error)
	GetPresence(userID string) (models.Presence, bool, error)
	SetTyping(convID, userID string, typing bool) error
	ListTyping(convID string) ([]models.Typing, error)
	GetUsers(ids []string) (map[string]models.User, error)
	IsMember(convID, userID string) (bool, error)
}

type Tracker struct {
	store  Store
	clock  timeutil.Clock
	window time.Duration
}

func New(s Store, clock timeutil.Clock, window time.Duration) *Tracker {
	return &Tracker{store: s, clock: timeutil.Or(clock), window: window}
}

// Window is how long a typing signal stays live.
func (t *Tracker) Window() time.Duration { return t.window }

func (t *Tracker) SetPresence(_ context.Context, userID string, online bool) (models.Presence, error) {
	return t.store.SetPresence(userID, online)
}

// GetPresence returns one entry per requested id, in request order.
// Users without a record are offline with a zero LastSeenTS.
func (t *Tracker) GetPresence(_ context.Context, userIDs []string) ([]models.Presence, error) {
	out := make([]models.Presence, 0, len(userIDs))
	for _, id := range userIDs {
		p, _, err := t.store.GetPresence(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SetTyping records (typing) or clears the caller's typing signal.
func (t *Tracker) SetTyping(_ context.Context, convID, userID string, typing bool) error {
	ok, err := t.store.IsMember(convID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s not in %s: %w", userID, convID, models.ErrUnauthorized)
	}
	return t.store.SetTyping(convID, userID, typing)
}

// GetTypingUsers returns the users whose last typing signal is inside the
// window, excluding excludeUserID, ordered by name.
func (t *Tracker) GetTypingUsers(_ context.Context, convID, excludeUserID string) ([]models.User, error) {
	rows, err := t.store.ListTyping(convID)
	if err != nil {
		return nil, err
	}
	now := t.clock.Now().UnixNano()
	var ids []string
	for _, r := range rows {
		if r.UserID == excludeUserID {
			continue
		}
		if now-r.LastTypedTS < t.window.Nanoseconds() {
			ids = append(ids, r.UserID)
		}
	}
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	users, err := t.store.GetUsers(ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.User, 0, len(users))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
