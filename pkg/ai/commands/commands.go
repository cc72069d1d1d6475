// Package commands recognises assist slash-commands at the start of a
// message.
package commands

import (
	"strings"

	"github.com/yz174/kliq/pkg/models"
)

// None is returned when the text carries no command.
const None models.ArtifactType = ""

var table = []struct {
	prefix string
	cmd    models.ArtifactType
}{
	{"/summarize", models.ArtifactSummary},
	{"/action-items", models.ArtifactActions},
	{"/reply", models.ArtifactReply},
}

// Detect maps a message to the artifact it requests. Matching is a
// case-sensitive prefix test on the trimmed text.
func Detect(text string) models.ArtifactType {
	trimmed := strings.TrimSpace(text)
	for _, e := range table {
		if strings.HasPrefix(trimmed, e.prefix) {
			return e.cmd
		}
	}
	return None
}
