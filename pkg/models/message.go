package models

type MessageKind string

const (
	MessageUser   MessageKind = "user"
	MessageSystem MessageKind = "system"
)

// DeletedPlaceholder replaces the content of soft-deleted messages wherever
// they are rendered.
const DeletedPlaceholder = "This message was deleted"

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"kind"`
	Deleted        bool        `json:"deleted,omitempty"`
	CreatedTS      int64       `json:"created_ts"`
	Seq            uint64      `json:"seq"`
	// Embedding is patched in asynchronously after send.
	Embedding []float32 `json:"embedding,omitempty"`
}

// DisplayContent returns the content or the deleted placeholder.
func (m Message) DisplayContent() string {
	if m.Deleted {
		return DeletedPlaceholder
	}
	return m.Content
}

type Reaction struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// AllowedEmojis is the reaction allow-list, in display order.
var AllowedEmojis = []string{"👍", "❤️", "😂", "😮", "😢"}

func IsAllowedEmoji(e string) bool {
	for _, a := range AllowedEmojis {
		if a == e {
			return true
		}
	}
	return false
}
