package models

type JobKind string

const (
	JobEmbed JobKind = "embed"
	JobAI    JobKind = "ai"
)

// Job is a pending background task, persisted with the message that
// triggered it and removed once a worker has run it.
type Job struct {
	Seq            uint64       `json:"seq"`
	Kind           JobKind      `json:"kind"`
	MessageID      string       `json:"message_id"`
	ConversationID string       `json:"conversation_id"`
	UserID         string       `json:"user_id,omitempty"`
	Command        ArtifactType `json:"command,omitempty"`
	CreatedTS      int64        `json:"created_ts"`
}
