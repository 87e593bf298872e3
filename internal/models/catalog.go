package models

import (
	"fmt"
	"sort"
	"strings"
)

// Class is a known bakery item label.
type Class string

const (
	Cookie    Class = "cookie"
	Croissant Class = "croissant"
	Donut     Class = "donut"
)

// BuiltinClasses is the class set the bundled model was trained on, in label id order.
var BuiltinClasses = [...]Class{Cookie, Croissant, Donut}

// Title returns the display name of the class ("croissant" -> "Croissant").
func (c Class) Title() string {
	s := string(c)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ClassOf maps a model or config label to its Class. Labels are matched
// case-insensitively, so "Bagel" and "bagel" are the same class.
func ClassOf(label string) Class {
	return Class(strings.ToLower(strings.TrimSpace(label)))
}

// Price is an amount in whole currency units.
type Price int64

// PriceTable maps a class to its unit price. Absent classes cost nothing.
type PriceTable map[Class]Price

// DefaultPrices is the shop price list.
func DefaultPrices() PriceTable {
	return PriceTable{
		Cookie:    5,
		Croissant: 30,
		Donut:     25,
	}
}

// Lookup returns the unit price and whether the class has a usable price.
func (p PriceTable) Lookup(c Class) (Price, bool) {
	price, ok := p[c]
	if !ok || price <= 0 {
		return 0, false
	}
	return price, true
}

// Catalog is the ordered known class set with its price table.
// It is built once at startup and only read afterwards.
type Catalog struct {
	classes  []Class
	index    map[Class]int
	prices   PriceTable
	currency string
}

// NewCatalog builds a catalog over the built-in classes followed by extra.
// Duplicate and empty labels are ignored.
func NewCatalog(prices PriceTable, currency string, extra ...Class) *Catalog {
	c := &Catalog{
		index:    make(map[Class]int),
		prices:   make(PriceTable, len(prices)),
		currency: currency,
	}

	for _, class := range BuiltinClasses {
		c.add(class)
	}
	for _, class := range extra {
		c.add(class)
	}

	for class, price := range prices {
		if price < 0 {
			price = 0
		}
		c.prices[ClassOf(string(class))] = price
	}

	return c
}

// DefaultCatalog is the built-in class set with DefaultPrices in Baht.
func DefaultCatalog() *Catalog {
	return NewCatalog(DefaultPrices(), "Baht")
}

func (c *Catalog) add(class Class) {
	class = ClassOf(string(class))
	if class == "" {
		return
	}
	if _, ok := c.index[class]; ok {
		return
	}
	c.index[class] = len(c.classes)
	c.classes = append(c.classes, class)
}

// Classes returns a copy of the known classes in display order.
func (c *Catalog) Classes() []Class {
	out := make([]Class, len(c.classes))
	copy(out, c.classes)
	return out
}

// Known reports whether label belongs to the known class set.
func (c *Catalog) Known(label string) (Class, bool) {
	class := ClassOf(label)
	_, ok := c.index[class]
	return class, ok
}

func (c *Catalog) Prices() PriceTable { return c.prices }

func (c *Catalog) Currency() string { return c.currency }

// NewCount returns a zeroed ClassCount over the known classes.
func (c *Catalog) NewCount() ClassCount {
	return ClassCount{
		classes: c.classes,
		counts:  make([]int, len(c.classes)),
		index:   c.index,
	}
}

// Summarize counts detections per class and prices the result.
func (c *Catalog) Summarize(detections []Detection) Summary {
	s := Summary{Counts: c.NewCount()}

	for _, d := range detections {
		if s.Counts.Add(ClassOf(d.Label)) {
			continue
		}
		if s.Other == nil {
			s.Other = make(map[string]int)
		}
		s.Other[d.Label]++
	}

	s.Total = s.Counts.Total(c.prices)
	return s
}

// ClassCount is a per-class tally that always enumerates every known class.
type ClassCount struct {
	classes []Class
	counts  []int
	index   map[Class]int
}

// Add increments the count of class. It returns false for classes outside the known set.
func (cc *ClassCount) Add(class Class) bool {
	i, ok := cc.index[class]
	if !ok {
		return false
	}
	cc.counts[i]++
	return true
}

// Get returns the count of class, zero for unknown classes.
func (cc ClassCount) Get(class Class) int {
	i, ok := cc.index[class]
	if !ok {
		return 0
	}
	return cc.counts[i]
}

// Len is the number of enumerated classes.
func (cc ClassCount) Len() int { return len(cc.classes) }

// Sum is the number of counted items over every class.
func (cc ClassCount) Sum() int {
	n := 0
	for _, v := range cc.counts {
		n += v
	}
	return n
}

// Each calls fn for every known class in order, including zero counts.
func (cc ClassCount) Each(fn func(class Class, n int)) {
	for i, class := range cc.classes {
		fn(class, cc.counts[i])
	}
}

// Total prices the tally. Classes without a price contribute nothing.
func (cc ClassCount) Total(prices PriceTable) Price {
	var total Price
	cc.Each(func(class Class, n int) {
		if price, ok := prices.Lookup(class); ok {
			total += Price(n) * price
		}
	})
	return total
}

// Map returns the tally as a plain map.
func (cc ClassCount) Map() map[Class]int {
	m := make(map[Class]int, len(cc.classes))
	cc.Each(func(class Class, n int) { m[class] = n })
	return m
}

// String renders the tally as "{cookie: 3, croissant: 1, donut: 0}".
func (cc ClassCount) String() string {
	var b strings.Builder
	b.WriteByte('{')
	cc.Each(func(class Class, n int) {
		if b.Len() > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %d", class, n)
	})
	b.WriteByte('}')
	return b.String()
}

// Summary is the per-frame tally and its price.
type Summary struct {
	Counts ClassCount
	// Other tallies labels the catalog does not know.
	Other map[string]int
	Total Price
}

// OtherLabels returns the unknown labels sorted by name.
func (s Summary) OtherLabels() []string {
	labels := make([]string, 0, len(s.Other))
	for label := range s.Other {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Items is the number of detections in the summary, known or not.
func (s Summary) Items() int {
	n := s.Counts.Sum()
	for _, v := range s.Other {
		n += v
	}
	return n
}
