package models

// User is a registered account, keyed internally by ID and upserted by the
// identity provider's ExternalID. Users are never hard-deleted.
type User struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	AvatarURL  string `json:"avatar_url,omitempty"`
	CreatedTS  int64  `json:"created_ts"`
}

// UnknownSenderName is shown when a sender can no longer be resolved.
const UnknownSenderName = "Unknown"

// Presence is a user's last-write-wins online state.
type Presence struct {
	UserID     string `json:"user_id"`
	IsOnline   bool   `json:"is_online"`
	LastSeenTS int64  `json:"last_seen_ts"`
}

// Typing records the last keystroke signal for (conversation, user).
// Liveness is derived at read time from LastTypedTS.
type Typing struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	LastTypedTS    int64  `json:"last_typed_ts"`
}
