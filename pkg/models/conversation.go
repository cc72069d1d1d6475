package models

type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

type Conversation struct {
	ID        string           `json:"id"`
	Kind      ConversationKind `json:"kind"`
	Name      string           `json:"name,omitempty"`
	CreatedBy string           `json:"created_by"`
	CreatedTS int64            `json:"created_ts"`
	// summary of the newest message, patched on every insert
	LastMessageID string `json:"last_message_id,omitempty"`
	LastMessageTS int64  `json:"last_message_ts,omitempty"`
	// LastSeq is the per-conversation message sequence.
	LastSeq uint64 `json:"last_seq,omitempty"`
}

// ActivityTS orders conversation lists: last message time, else creation.
func (c Conversation) ActivityTS() int64 {
	if c.LastMessageTS > 0 {
		return c.LastMessageTS
	}
	return c.CreatedTS
}

type Membership struct {
	ConversationID    string `json:"conversation_id"`
	UserID            string `json:"user_id"`
	LastReadMessageID string `json:"last_read_message_id,omitempty"`
	JoinedTS          int64  `json:"joined_ts"`
}
