package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/yz174/kliq/pkg/models"
)

// ContextLine is one transcript entry handed to the model.
type ContextLine struct {
	SenderID   string
	SenderName string
	Content    string
	CreatedTS  int64
}

const baseInstruction = `You are an AI assistant embedded in Kliq, a real-time messaging app.
Your job is to help users stay on top of their conversations without replacing them.
Be concise, structured, and use plain language.`

const (
	summaryTask = `Below is the recent conversation history. Write a concise summary (3-5 sentences) that captures:
- The main topics discussed
- Any decisions made
- The overall tone`

	actionsTask = `Below is the recent conversation history. Extract all action items, tasks, and decisions mentioned.
Format them as a numbered list. Only include concrete, actionable items and skip casual chit-chat.
If no action items exist, respond with "No action items found."`

	replyTask = `Below is the recent conversation history. Suggest 3 short, natural reply options the user could send next.
Each reply should be contextually relevant, concise (1-2 sentences max), and distinct from the others.
Format: one reply per line, no numbering or bullets.`
)

// Transcript renders lines as "[HH:MM] Name: content" in UTC.
func Transcript(lines []ContextLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		ts := time.Unix(0, l.CreatedTS).UTC().Format("15:04")
		fmt.Fprintf(&b, "[%s] %s: %s", ts, l.SenderName, l.Content)
	}
	return b.String()
}

// BuildPrompt returns the deterministic prompt for cmd over lines.
func BuildPrompt(cmd models.ArtifactType, lines []ContextLine) (string, error) {
	var task, tail string
	switch cmd {
	case models.ArtifactSummary:
		task, tail = summaryTask, "Summary:"
	case models.ArtifactActions:
		task, tail = actionsTask, "Action Items:"
	case models.ArtifactReply:
		task, tail = replyTask, "Suggested replies:"
	default:
		return "", fmt.Errorf("command %q: %w", cmd, models.ErrInvalidArgument)
	}
	return baseInstruction + "\n\n" + task + "\n\nConversation:\n" + Transcript(lines) + "\n\n" + tail, nil
}
