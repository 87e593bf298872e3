// Package annotator turns a detection set into a priced overlay.
package annotator

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"bakerycam/internal/models"
)

const (
	originX    = 50
	originY    = 50
	lineHeight = 75

	fontSize      = 26
	labelFontSize = 20
	boxWidth      = 3
	labelOffset   = 10
)

var (
	textColor = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	boxColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	font *truetype.Font
)

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Annotator draws counts, subtotals and boxes onto copies of frames.
// It is safe for concurrent use.
type Annotator struct {
	catalog *models.Catalog
}

func New(catalog *models.Catalog) *Annotator {
	return &Annotator{catalog: catalog}
}

// Annotate returns an overlaid copy of frame and the frame summary.
// frame is never written to.
func (a *Annotator) Annotate(frame image.Image, detections []models.Detection) (*image.RGBA, models.Summary) {
	summary := a.catalog.Summarize(detections)

	bounds := frame.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), frame, bounds.Min, draw.Src)

	dc := gg.NewContextForRGBA(out)

	labelFace := truetype.NewFace(font, &truetype.Options{Size: labelFontSize})
	for _, d := range detections {
		r := d.Box.Sub(bounds.Min).Canon()

		dc.SetColor(boxColor)
		dc.SetLineWidth(boxWidth)
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()

		dc.SetFontFace(labelFace)
		dc.SetColor(textColor)
		dc.DrawString(d.Label, float64(r.Min.X), float64(r.Min.Y-labelOffset))
	}

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: fontSize}))
	dc.SetColor(textColor)

	y := originY
	for _, line := range ItemLines(summary, a.catalog) {
		dc.DrawString(line, originX, float64(y))
		y += lineHeight
	}
	dc.DrawString(TotalLine(summary, a.catalog), originX, float64(y+lineHeight))

	return out, summary
}

// ItemLines renders one line per class with a non-zero count, known classes
// first in catalog order, then unknown labels by name.
func ItemLines(s models.Summary, catalog *models.Catalog) []string {
	var lines []string

	s.Counts.Each(func(class models.Class, n int) {
		if n == 0 {
			return
		}
		price, ok := catalog.Prices().Lookup(class)
		if !ok {
			lines = append(lines, unpricedLine(class.Title(), n))
			return
		}
		lines = append(lines, fmt.Sprintf("%s = %d >> %d %s", class.Title(), n, models.Price(n)*price, catalog.Currency()))
	})

	for _, label := range s.OtherLabels() {
		lines = append(lines, unpricedLine(models.Class(label).Title(), s.Other[label]))
	}

	return lines
}

func TotalLine(s models.Summary, catalog *models.Catalog) string {
	return fmt.Sprintf("Total Price: %d %s", s.Total, catalog.Currency())
}

func unpricedLine(title string, n int) string {
	return fmt.Sprintf("%d %ss (Price not available)", n, title)
}
