package keys

import (
	"fmt"
	"strconv"
	"strings"
)

type MembershipKeyParts struct {
	ConversationID string
	UserID         string
}

type ArtifactKeyParts struct {
	ConversationID string
	UserID         string
	Type           string
	TS             int64
	Seq            uint64
}

type ConversationMsgIndexParts struct {
	ConversationID string
	TS             int64
	Seq            uint64
}

func parsePaddedInt(s string, width int) (int64, error) {
	if len(s) != width {
		return 0, fmt.Errorf("length invalid: %s", s)
	}
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return 0, nil
	}
	return strconv.ParseInt(trimmed, 10, 64)
}

// ParseMembershipKey parses mb:c:<conv>:u:<user>.
func ParseMembershipKey(key string) (MembershipKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "mb" || parts[1] != "c" || parts[3] != "u" {
		return MembershipKeyParts{}, fmt.Errorf("invalid membership key: %s", key)
	}
	return MembershipKeyParts{ConversationID: parts[2], UserID: parts[4]}, nil
}

// ParseUserConversationIndex parses idx:u:<user>:c:<conv> and returns the
// conversation id.
func ParseUserConversationIndex(key string) (string, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 5 || parts[0] != "idx" || parts[1] != "u" || parts[3] != "c" {
		return "", fmt.Errorf("invalid user conversation index: %s", key)
	}
	return parts[4], nil
}

// ParseConversationMsgIndex parses idx:c:<conv>:m:<ts>:<seq>.
func ParseConversationMsgIndex(key string) (ConversationMsgIndexParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 6 || parts[0] != "idx" || parts[1] != "c" || parts[3] != "m" {
		return ConversationMsgIndexParts{}, fmt.Errorf("invalid conversation message index: %s", key)
	}
	ts, err := parsePaddedInt(parts[4], TSPadWidth)
	if err != nil {
		return ConversationMsgIndexParts{}, fmt.Errorf("invalid ts in %s: %w", key, err)
	}
	seq, err := parsePaddedInt(parts[5], SeqPadWidth)
	if err != nil {
		return ConversationMsgIndexParts{}, fmt.Errorf("invalid seq in %s: %w", key, err)
	}
	return ConversationMsgIndexParts{ConversationID: parts[2], TS: ts, Seq: uint64(seq)}, nil
}

// ParseArtifactKey parses a:c:<conv>:u:<user>:t:<type>:<ts>:<seq>.
func ParseArtifactKey(key string) (ArtifactKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 9 || parts[0] != "a" || parts[1] != "c" || parts[3] != "u" || parts[5] != "t" {
		return ArtifactKeyParts{}, fmt.Errorf("invalid artifact key: %s", key)
	}
	ts, err := parsePaddedInt(parts[7], TSPadWidth)
	if err != nil {
		return ArtifactKeyParts{}, fmt.Errorf("invalid ts in %s: %w", key, err)
	}
	seq, err := parsePaddedInt(parts[8], SeqPadWidth)
	if err != nil {
		return ArtifactKeyParts{}, fmt.Errorf("invalid seq in %s: %w", key, err)
	}
	return ArtifactKeyParts{
		ConversationID: parts[2],
		UserID:         parts[4],
		Type:           parts[6],
		TS:             ts,
		Seq:            uint64(seq),
	}, nil
}

// ParseJobKey returns the sequence of a job:<seq> key.
func ParseJobKey(key string) (uint64, error) {
	s, ok := strings.CutPrefix(key, JobPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid job key: %s", key)
	}
	v, err := parsePaddedInt(s, TSPadWidth)
	if err != nil {
		return 0, fmt.Errorf("invalid job key %s: %w", key, err)
	}
	return uint64(v), nil
}

// ParseIndexValue splits a conversation message index value.
func ParseIndexValue(v []byte) (msgID, senderID string, err error) {
	s := string(v)
	i := strings.Index(s, IndexValueSep)
	if i <= 0 {
		return "", "", fmt.Errorf("invalid index value: %q", s)
	}
	return s[:i], s[i+1:], nil
}

// ParseReactionKey parses r:m:<msg>:u:<user>:e:<emoji>.
func ParseReactionKey(key string) (msgID, userID, emoji string, err error) {
	parts := strings.SplitN(key, ":", 7)
	if len(parts) != 7 || parts[0] != "r" || parts[1] != "m" || parts[3] != "u" || parts[5] != "e" {
		return "", "", "", fmt.Errorf("invalid reaction key: %s", key)
	}
	return parts[2], parts[4], parts[6], nil
}
