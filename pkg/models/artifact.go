package models

// ArtifactType names an AI artifact; it doubles as the command that
// produces it.
type ArtifactType string

const (
	ArtifactSummary ArtifactType = "summary"
	ArtifactActions ArtifactType = "actions"
	ArtifactReply   ArtifactType = "reply"
)

var ArtifactTypes = []ArtifactType{ArtifactSummary, ArtifactActions, ArtifactReply}

func (t ArtifactType) Valid() bool {
	switch t {
	case ArtifactSummary, ArtifactActions, ArtifactReply:
		return true
	}
	return false
}

type ArtifactMetadata struct {
	MessageCount int `json:"message_count"`
}

// Artifact is an immutable AI output addressed to one requester.
type Artifact struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	UserID         string           `json:"user_id"`
	Type           ArtifactType     `json:"type"`
	Content        string           `json:"content"`
	Metadata       ArtifactMetadata `json:"metadata"`
	CreatedTS      int64            `json:"created_ts"`
}
