package processing

import (
	"fmt"
	"image"
	"sort"

	"github.com/pkg/errors"

	"bakerycam/internal/models"
)

// yoloDecoder turns a YOLOv8 output tensor of shape [1, 4+classes, anchors]
// into detections. Box rows are (cx, cy, w, h) in input pixels.
type yoloDecoder struct {
	labels    []string
	inputSize int
	iou       float32
}

// anchorCount is the number of YOLOv8 predictions for a square input of size s
// (strides 8, 16 and 32).
func anchorCount(s int) int {
	return (s/8)*(s/8) + (s/16)*(s/16) + (s/32)*(s/32)
}

func (d yoloDecoder) label(classID int) string {
	if classID >= 0 && classID < len(d.labels) {
		return d.labels[classID]
	}
	return fmt.Sprintf("class%d", classID)
}

func (d yoloDecoder) decode(output []float32, rows, anchors int, frame image.Rectangle, threshold float32) ([]models.Detection, error) {
	if rows <= 4 || anchors <= 0 {
		return nil, errors.Wrapf(ErrModelShape, "output layout %dx%d", rows, anchors)
	}
	if len(output) < rows*anchors {
		return nil, errors.Wrapf(ErrModelShape, "output holds %d floats, need %d", len(output), rows*anchors)
	}

	scaleX := float32(frame.Dx()) / float32(d.inputSize)
	scaleY := float32(frame.Dy()) / float32(d.inputSize)
	classes := rows - 4

	candidates := make([]models.Detection, 0, 64)
	for idx := 0; idx < anchors; idx++ {
		classID := 0
		probability := float32(-1e9)
		for col := 0; col < classes; col++ {
			p := output[anchors*(col+4)+idx]
			if p > probability {
				probability = p
				classID = col
			}
		}

		if probability < threshold {
			continue
		}

		xc, yc := output[idx], output[anchors+idx]
		w, h := output[2*anchors+idx], output[3*anchors+idx]

		x1 := int((xc - w/2) * scaleX)
		y1 := int((yc - h/2) * scaleY)
		x2 := int((xc + w/2) * scaleX)
		y2 := int((yc + h/2) * scaleY)

		candidates = append(candidates, models.Detection{
			Label:      d.label(classID),
			ClassID:    classID,
			Box:        image.Rect(x1, y1, x2, y2).Add(frame.Min).Intersect(frame),
			Confidence: probability,
		})
	}

	return nonMaxSuppression(candidates, d.iou), nil
}

// nonMaxSuppression keeps the most confident box of every overlapping group of
// the same class. The result is ordered by descending confidence.
func nonMaxSuppression(in []models.Detection, iouThreshold float32) []models.Detection {
	sort.SliceStable(in, func(i, j int) bool {
		return in[i].Confidence > in[j].Confidence
	})

	kept := make([]models.Detection, 0, len(in))
	for _, candidate := range in {
		overlaps := false
		for _, existing := range kept {
			if existing.ClassID == candidate.ClassID && iou(existing.Box, candidate.Box) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func area(r image.Rectangle) int {
	s := r.Canon().Size()
	return s.X * s.Y
}

func iou(a, b image.Rectangle) float32 {
	inter := area(a.Canon().Intersect(b.Canon()))
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

// filterAndSort is used by backends that do not threshold themselves.
func filterAndSort(in []models.Detection, threshold float32) []models.Detection {
	out := make([]models.Detection, 0, len(in))
	for _, d := range in {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}
