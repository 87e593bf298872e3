package cwidget

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"bakerycam/internal/models"
	"bakerycam/processing/annotator"
)

// SummaryCard lists per-class counts and the basket total.
type SummaryCard struct {
	widget.BaseWidget

	titleWidget *widget.Label
	rowsWidget  *widget.Label
	otherWidget *widget.Label
	totalWidget *widget.Label

	catalog *models.Catalog
}

func NewSummaryCard(title string, catalog *models.Catalog) *SummaryCard {
	card := &SummaryCard{catalog: catalog}

	card.titleWidget = widget.NewLabel(title)
	card.titleWidget.TextStyle = fyne.TextStyle{Bold: true}

	card.rowsWidget = widget.NewLabel("")

	card.otherWidget = widget.NewLabel("")
	card.otherWidget.Hidden = true
	card.otherWidget.TextStyle = fyne.TextStyle{Italic: true}
	card.otherWidget.Importance = widget.WarningImportance

	card.totalWidget = widget.NewLabel("")
	card.totalWidget.TextStyle = fyne.TextStyle{Bold: true}
	card.totalWidget.Importance = widget.HighImportance

	card.ExtendBaseWidget(card)
	card.SetSummary(catalog.Summarize(nil))

	return card
}

func (card *SummaryCard) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		card.titleWidget,
		widget.NewSeparator(),
		card.rowsWidget,
		card.otherWidget,
		card.totalWidget,
	)

	return widget.NewSimpleRenderer(c)
}

// SetSummary replaces the card content. Must be called on the UI goroutine.
func (card *SummaryCard) SetSummary(s models.Summary) {
	card.rowsWidget.SetText(countRows(s, card.catalog))

	other := otherRow(s)
	card.otherWidget.Hidden = other == ""
	card.otherWidget.SetText(other)

	card.totalWidget.SetText(annotator.TotalLine(s, card.catalog))
}

func countRows(s models.Summary, catalog *models.Catalog) string {
	prices := catalog.Prices()
	rows := make([]string, 0, s.Counts.Len())

	s.Counts.Each(func(class models.Class, n int) {
		price, ok := prices.Lookup(class)
		if !ok {
			rows = append(rows, fmt.Sprintf("%s: %d (price n/a)", class.Title(), n))
			return
		}
		rows = append(rows, fmt.Sprintf("%s: %d x %d = %d %s", class.Title(), n, price, models.Price(n)*price, catalog.Currency()))
	})

	return strings.Join(rows, "\n")
}

func otherRow(s models.Summary) string {
	labels := s.OtherLabels()
	if len(labels) == 0 {
		return ""
	}

	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s %d", l, s.Other[l]))
	}
	return "Unpriced: " + strings.Join(parts, ", ")
}
