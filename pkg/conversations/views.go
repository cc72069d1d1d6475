package conversations

import (
	"github.com/yz174/kliq/pkg/messaging"
	"github.com/yz174/kliq/pkg/models"
)

type LastMessage struct {
	ID        string                `json:"id"`
	Sender    messaging.UserSummary `json:"sender"`
	Content   string                `json:"content"`
	Kind      models.MessageKind    `json:"kind"`
	Deleted   bool                  `json:"deleted"`
	CreatedTS int64                 `json:"created_ts"`
}

// View is a conversation as seen by one member.
type View struct {
	ID                string                  `json:"id"`
	Kind              models.ConversationKind `json:"kind"`
	Name              string                  `json:"name,omitempty"`
	CreatedBy         string                  `json:"created_by"`
	CreatedTS         int64                   `json:"created_ts"`
	ActivityTS        int64                   `json:"activity_ts"`
	Members           []messaging.UserSummary `json:"members"`
	LastMessage       *LastMessage            `json:"last_message,omitempty"`
	UnreadCount       int                     `json:"unread_count"`
	LastReadMessageID string                  `json:"last_read_message_id,omitempty"`
}
