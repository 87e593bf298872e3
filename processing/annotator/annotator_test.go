package annotator

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bakerycam/internal/models"
)

func testFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	return img
}

func det(label string, x, y int) models.Detection {
	return models.Detection{Label: label, Box: image.Rect(x, y, x+60, y+40), Confidence: 0.9}
}

func TestAnnotateDoesNotMutateInput(t *testing.T) {
	frame := testFrame(320, 240)
	before := bytes.Clone(frame.Pix)

	a := New(models.DefaultCatalog())
	out, _ := a.Annotate(frame, []models.Detection{det("cookie", 10, 10), det("donut", 200, 150)})

	assert.Equal(t, before, frame.Pix)
	require.NotNil(t, out)
	assert.Equal(t, frame.Bounds(), out.Bounds())
	assert.NotEqual(t, frame.Pix, out.Pix, "overlay must be drawn on the copy")
}

func TestAnnotateSummary(t *testing.T) {
	a := New(models.DefaultCatalog())

	_, s := a.Annotate(testFrame(320, 240), []models.Detection{
		det("cookie", 0, 0), det("cookie", 50, 0), det("cookie", 100, 0), det("croissant", 0, 100),
	})

	assert.Equal(t, map[models.Class]int{"cookie": 3, "croissant": 1, "donut": 0}, s.Counts.Map())
	assert.Equal(t, models.Price(45), s.Total)
}

func TestAnnotateHandlesOffsetBoundsAndEmptySet(t *testing.T) {
	frame := testFrame(200, 200).SubImage(image.Rect(50, 50, 150, 150))

	a := New(models.DefaultCatalog())
	out, s := a.Annotate(frame, nil)

	assert.Equal(t, image.Rect(0, 0, 100, 100), out.Bounds())
	assert.Equal(t, 0, s.Counts.Sum())
	assert.Equal(t, models.Price(0), s.Total)
}

func TestItemLines(t *testing.T) {
	catalog := models.NewCatalog(models.DefaultPrices(), "Baht", "bagel")
	s := catalog.Summarize([]models.Detection{
		det("croissant", 0, 0), det("croissant", 0, 0), det("bagel", 0, 0), det("muffin", 0, 0),
	})

	assert.Equal(t, []string{
		"Croissant = 2 >> 60 Baht",
		"1 Bagels (Price not available)",
		"1 Muffins (Price not available)",
	}, ItemLines(s, catalog))
	assert.Equal(t, "Total Price: 60 Baht", TotalLine(s, catalog))
}
