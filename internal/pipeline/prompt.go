package pipeline

import (
	"fmt"
	"strings"

	"github.com/playperu/hiddencatch/internal/diffset"
)

// BuildPrompt joins the per-region modification ideas into one editor
// instruction. Regions without an idea get a generic one naming the label.
func BuildPrompt(regions []diffset.Region) string {
	parts := make([]string, 0, len(regions))
	for _, r := range regions {
		idea := strings.TrimSpace(r.Prompt)
		if idea == "" {
			label := strings.TrimSpace(r.Label)
			if label == "" {
				label = "the object"
			}
			idea = fmt.Sprintf("Modify %s to create a difference.", label)
		}
		parts = append(parts, idea)
	}
	return strings.Join(parts, " ")
}
