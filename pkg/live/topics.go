package live

import (
	"fmt"
	"strings"
)

func MessagesTopic(convID string) string { return fmt.Sprintf(topicMessages, convID) }

func TypingTopic(convID string) string { return fmt.Sprintf(topicTyping, convID) }

func ArtifactsTopic(convID, userID string) string {
	return fmt.Sprintf(topicArtifacts, convID, userID)
}

func ConversationsTopic(userID string) string { return fmt.Sprintf(topicConversations, userID) }

func PresenceTopic(userID string) string { return fmt.Sprintf(topicPresence, userID) }

// TopicVisibleTo reports whether userID may subscribe to topic, given a
// membership check for conversation-scoped topics. Presence topics are
// public; conversation lists and AI artifacts are private to their owner.
func TopicVisibleTo(topic, userID string, isMember func(convID string) bool) bool {
	parts := strings.Split(topic, ":")
	switch {
	case len(parts) == 2 && parts[0] == "presence":
		return parts[1] != ""
	case len(parts) == 3 && parts[0] == "user" && parts[2] == "conversations":
		return parts[1] == userID
	case len(parts) == 3 && parts[0] == "conv" && (parts[2] == "messages" || parts[2] == "typing"):
		return isMember(parts[1])
	case len(parts) == 4 && parts[0] == "conv" && parts[2] == "ai":
		return parts[3] == userID && isMember(parts[1])
	}
	return false
}
