package catalog

import (
	"sort"
	"strconv"
	"strings"

	"karybot/internal/config"
)

// Item is one purchasable package of Valorant Points with its regional
// prices and stock flag.
type Item struct {
	Points  int
	USD     int
	MAD     int
	InStock bool
}

// Catalog is the static price table. It is pure configuration: loaded once
// at startup, never mutated at runtime.
type Catalog struct {
	items []Item
}

// New builds a catalog from config rows, falling back to the built-in
// price table when the config carries none.
func New(rows []config.CatalogItem) *Catalog {
	if len(rows) == 0 {
		return &Catalog{items: defaultItems()}
	}
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, Item{Points: r.Points, USD: r.USD, MAD: r.MAD, InStock: r.InStock})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Points < items[j].Points })
	return &Catalog{items: items}
}

func defaultItems() []Item {
	return []Item{
		{Points: 5350, USD: 25, MAD: 249, InStock: false},
		{Points: 10000, USD: 55, MAD: 550, InStock: true},
		{Points: 12000, USD: 65, MAD: 650, InStock: true},
		{Points: 18000, USD: 85, MAD: 850, InStock: true},
		{Points: 25000, USD: 130, MAD: 1300, InStock: true},
		{Points: 50000, USD: 230, MAD: 2300, InStock: true},
		{Points: 100000, USD: 450, MAD: 4500, InStock: true},
	}
}

// Items returns the table in ascending point order.
func (c *Catalog) Items() []Item {
	return c.items
}

// Normalize strips thousands separators and whitespace from a user-typed
// points amount, so "10,000" and "10000" hit the same row.
func Normalize(amount string) string {
	amount = strings.TrimSpace(amount)
	amount = strings.ReplaceAll(amount, ",", "")
	amount = strings.ReplaceAll(amount, " ", "")
	return amount
}

// Lookup finds the package matching a user-typed points amount.
func (c *Catalog) Lookup(amount string) (Item, bool) {
	normalized := Normalize(amount)
	for _, item := range c.items {
		if strconv.Itoa(item.Points) == normalized {
			return item, true
		}
	}
	return Item{}, false
}

// FormatPoints renders a point count with thousands separators, matching
// the price-list display format.
func FormatPoints(points int) string {
	s := strconv.Itoa(points)
	var sb strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
