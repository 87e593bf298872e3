package models

import (
	"fmt"
	"image"
)

// DetectionResult is the wire form returned by the remote detection server.
// Box holds normalized [y1, x1, y2, x2] coordinates.
type DetectionResult struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

// Detection is one recognized object instance in frame pixel coordinates.
type Detection struct {
	Label      string
	ClassID    int
	Box        image.Rectangle
	Confidence float32
}

func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f) %v", d.Label, d.Confidence, d.Box)
}

// ToDetection converts a normalized wire result into frame coordinates.
// Results with a malformed box are reported as ok=false.
func (r DetectionResult) ToDetection(width, height int) (Detection, bool) {
	if len(r.Box) != 4 {
		return Detection{}, false
	}

	w := float32(width)
	h := float32(height)

	y1 := int(r.Box[0] * h)
	x1 := int(r.Box[1] * w)
	y2 := int(r.Box[2] * h)
	x2 := int(r.Box[3] * w)

	return Detection{
		Label:      r.Label,
		ClassID:    -1,
		Box:        image.Rect(x1, y1, x2, y2),
		Confidence: r.Confidence,
	}, true
}
