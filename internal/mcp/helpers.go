package mcpserver

import (
	"encoding/json"
	"fmt"

	"annotate/internal/domain"
)

// parseJSON parses a JSON string into the target type.
func parseJSON(data string, target any) error {
	return json.Unmarshal([]byte(data), target)
}

// parsePoints reads a stroke given either as [{"x":1,"y":2},...] or as
// flat pairs [[1,2],...].
func parsePoints(data string) ([]domain.Point, error) {
	var pts []domain.Point
	if err := parseJSON(data, &pts); err == nil {
		return pts, nil
	}
	var pairs [][2]float64
	if err := parseJSON(data, &pairs); err != nil {
		return nil, fmt.Errorf("points must be a JSON array of {x,y} objects or [x,y] pairs: %w", err)
	}
	pts = make([]domain.Point, len(pairs))
	for i, p := range pairs {
		pts[i] = domain.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}

// objectSummary is the compact view of an annotation returned to agents.
type objectSummary struct {
	ID     string            `json:"id"`
	Kind   domain.ObjectKind `json:"kind"`
	Bounds [4]float64        `json:"bounds"`
	Text   string            `json:"text,omitempty"`
	Points int               `json:"points,omitempty"`
}

func summarizeObjects(objs []domain.Object) []objectSummary {
	out := make([]objectSummary, len(objs))
	for i, o := range objs {
		x0, y0, x1, y1 := o.Bounds()
		out[i] = objectSummary{
			ID:     o.ID,
			Kind:   o.Kind,
			Bounds: [4]float64{x0, y0, x1, y1},
			Text:   o.Text,
			Points: len(o.Points),
		}
	}
	return out
}
