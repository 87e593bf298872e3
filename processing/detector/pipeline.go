package processing

import (
	"context"
	"image"

	"bakerycam/internal/models"
	"bakerycam/processing/annotator"
)

// Pipeline runs detection and annotation on one frame.
type Pipeline struct {
	Detector  Detector
	Annotator *annotator.Annotator
}

func (p Pipeline) Process(ctx context.Context, frame image.Image, threshold float32) (*image.RGBA, []models.Detection, models.Summary, error) {
	detections, err := p.Detector.Detect(ctx, frame, threshold)
	if err != nil {
		return nil, nil, models.Summary{}, err
	}

	annotated, summary := p.Annotator.Annotate(frame, detections)
	return annotated, detections, summary, nil
}
