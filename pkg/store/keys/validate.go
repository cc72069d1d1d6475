package keys

import (
	"fmt"
	"strings"
)

const maxIDLength = 128

// ValidateID rejects ids that would break key segmentation.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id is empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("id too long")
	}
	if strings.ContainsAny(id, ":|\x00\n") {
		return fmt.Errorf("id contains reserved characters: %q", id)
	}
	return nil
}
