package messaging

import "github.com/yz174/kliq/pkg/models"

// UserSummary is the public slice of a user embedded in views.
type UserSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Summarize resolves id against users, falling back to "Unknown".
func Summarize(id string, users map[string]models.User) UserSummary {
	if u, ok := users[id]; ok {
		return UserSummary{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
	}
	return UserSummary{ID: id, Name: models.UnknownSenderName}
}

type ReactionGroup struct {
	Emoji   string   `json:"emoji"`
	Count   int      `json:"count"`
	UserIDs []string `json:"user_ids"`
}

type MessageView struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Sender         UserSummary        `json:"sender"`
	Content        string             `json:"content"`
	Kind           models.MessageKind `json:"kind"`
	Deleted        bool               `json:"deleted"`
	CreatedTS      int64              `json:"created_ts"`
	Reactions      []ReactionGroup    `json:"reactions"`
}

// GroupReactions folds reactions into per-emoji groups in allow-list
// order, omitting emojis nobody used.
func GroupReactions(rs []models.Reaction) []ReactionGroup {
	byEmoji := make(map[string][]string, len(models.AllowedEmojis))
	for _, r := range rs {
		byEmoji[r.Emoji] = append(byEmoji[r.Emoji], r.UserID)
	}
	out := []ReactionGroup{}
	for _, e := range models.AllowedEmojis {
		if ids := byEmoji[e]; len(ids) > 0 {
			out = append(out, ReactionGroup{Emoji: e, Count: len(ids), UserIDs: ids})
		}
	}
	return out
}

func newView(m models.Message, users map[string]models.User, rs []models.Reaction) MessageView {
	return MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         Summarize(m.SenderID, users),
		Content:        m.DisplayContent(),
		Kind:           m.Kind,
		Deleted:        m.Deleted,
		CreatedTS:      m.CreatedTS,
		Reactions:      GroupReactions(rs),
	}
}
