package diffset

import (
	"fmt"

	"github.com/playperu/hiddencatch/internal/geometry"
	"github.com/playperu/hiddencatch/internal/hiddencatch"
)

// Region is one playable difference produced by Build.
type Region struct {
	Index  int           `json:"index"` // 1-based
	Rect   geometry.Rect `json:"rect"`
	Label  string        `json:"label"`
	Prompt string        `json:"prompt,omitempty"`
}

// Build runs Resolve over objects and numbers the survivors from 1.
// It fails with hiddencatch.ErrNoDetections when there is nothing to start
// from or nothing survives.
func Build(objects []Object, width, height int) ([]Region, error) {
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w: detector returned no objects", hiddencatch.ErrNoDetections)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", hiddencatch.ErrInvalidInput, width, height)
	}

	resolved := Resolve(objects, width, height)
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: all %d detections were filtered out", hiddencatch.ErrNoDetections, len(objects))
	}

	regions := make([]Region, len(resolved))
	for i, o := range resolved {
		regions[i] = Region{
			Index:  i + 1,
			Rect:   o.Rect,
			Label:  o.Label,
			Prompt: o.Prompt,
		}
	}
	return regions, nil
}
