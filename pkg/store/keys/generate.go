package keys

import (
	"fmt"

	"github.com/google/uuid"
)

// NewID returns a fresh random entity id.
func NewID() string {
	return uuid.NewString()
}

func PadTS(ts int64) string {
	return fmt.Sprintf("%0*d", TSPadWidth, ts)
}

func PadSeq(seq uint64) string {
	return fmt.Sprintf("%0*d", SeqPadWidth, seq)
}

func GenUserKey(userID string) string { return fmt.Sprintf(UserKey, userID) }

func GenUserExternalIndex(externalID string) string {
	return fmt.Sprintf(UserExternalIndex, externalID)
}

func GenConversationKey(convID string) string { return fmt.Sprintf(ConversationKey, convID) }

func GenMembershipKey(convID, userID string) string {
	return fmt.Sprintf(MembershipKey, convID, userID)
}

func GenMembershipPrefix(convID string) string { return fmt.Sprintf(MembershipPrefix, convID) }

func GenUserConversationIndex(userID, convID string) string {
	return fmt.Sprintf(UserConversationIndex, userID, convID)
}

func GenUserConversationPrefix(userID string) string {
	return fmt.Sprintf(UserConversationPrefix, userID)
}

func GenMessageKey(msgID string) string { return fmt.Sprintf(MessageKey, msgID) }

func GenConversationMsgIndex(convID string, ts int64, seq uint64) string {
	return fmt.Sprintf(ConversationMsgIndex, convID, PadTS(ts), PadSeq(seq))
}

func GenConversationMsgPrefix(convID string) string {
	return fmt.Sprintf(ConversationMsgPrefix, convID)
}

func GenReactionKey(msgID, userID, emoji string) string {
	return fmt.Sprintf(ReactionKey, msgID, userID, emoji)
}

func GenReactionPrefix(msgID string) string { return fmt.Sprintf(ReactionPrefix, msgID) }

func GenPresenceKey(userID string) string { return fmt.Sprintf(PresenceKey, userID) }

func GenTypingKey(convID, userID string) string { return fmt.Sprintf(TypingKey, convID, userID) }

func GenTypingPrefix(convID string) string { return fmt.Sprintf(TypingPrefix, convID) }

func GenArtifactKey(convID, userID, artifactType string, ts int64, seq uint64) string {
	return fmt.Sprintf(ArtifactKey, convID, userID, artifactType, PadTS(ts), PadSeq(seq))
}

func GenArtifactTypePrefix(convID, userID, artifactType string) string {
	return fmt.Sprintf(ArtifactTypePrefix, convID, userID, artifactType)
}

func GenArtifactUserPrefix(convID, userID string) string {
	return fmt.Sprintf(ArtifactUserPrefix, convID, userID)
}

func GenArtifactConversationPrefix(convID string) string {
	return fmt.Sprintf(ArtifactConversationPrefix, convID)
}

func GenJobKey(seq uint64) string { return fmt.Sprintf(JobKey, PadTS(int64(seq))) }

// GenIndexValue encodes the value stored under a conversation message index.
func GenIndexValue(msgID, senderID string) string {
	return msgID + IndexValueSep + senderID
}

// UpperBound returns the smallest key strictly greater than every key with
// the given prefix, for use as an iterator upper bound.
func UpperBound(prefix string) []byte {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			out := make([]byte, i+1)
			copy(out, b[:i+1])
			out[i]++
			return out
		}
	}
	return nil
}
