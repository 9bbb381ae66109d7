package pipeline

import (
	"fmt"
	"strings"
)

// RunKey is where a run keeps its own copy of the uploaded original. The
// slot key can be overwritten by a later upload; a run key never is.
func RunKey(slotKey string, version int64) string {
	return fmt.Sprintf("%s-v%d.png", strings.TrimSuffix(slotKey, ".png"), version)
}

// ModifiedKey is where the edited image of original is stored.
func ModifiedKey(original string) string {
	return strings.TrimSuffix(original, ".png") + "-modified.png"
}
