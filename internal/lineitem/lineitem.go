// Package lineitem turns a free-text dish list into priced, de-duplicated
// checkout line items.
//
// Each dish is written as "<name> - <price>", where price is a non-negative
// decimal in major currency units with at most twelve integer and two
// fractional digits. Dishes
// that do not follow that pattern are dropped without error; callers decide
// whether an empty result is acceptable.
package lineitem

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Currency is the only currency accepted by the checkout.
const Currency = "PHP"

// MaxUnitAmount is the largest unit amount a dish can carry, in minor units.
const MaxUnitAmount int64 = 99_999_999_999_999

var dishPattern = regexp.MustCompile(`^(.+?)\s*-\s*(\d{1,12}(?:\.\d{1,2})?)$`)

// LineItem is a named, priced, quantified unit of a checkout.
type LineItem struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"amount"`
	Currency   string `json:"currency"`
	Quantity   int    `json:"quantity"`
}

// Parse normalises the given dish elements into line items.
//
// Elements are trimmed and empty ones skipped. Prices are converted to minor
// units with math.Round(price*100), i.e. half away from zero, which absorbs the
// sub-centavo error of the float multiplication. Repeated names are merged:
// the quantity grows by one per occurrence and the unit amount of the first
// occurrence wins. Items are returned in first-occurrence order.
func Parse(elements []string) []LineItem {
	items := make([]LineItem, 0, len(elements))
	index := make(map[string]int, len(elements))

	for _, element := range elements {
		name, amount, ok := parseElement(element)
		if !ok {
			continue
		}

		if i, seen := index[name]; seen {
			items[i].Quantity++
			continue
		}

		index[name] = len(items)
		items = append(items, LineItem{
			Name:       name,
			UnitAmount: amount,
			Currency:   Currency,
			Quantity:   1,
		})
	}

	return items
}

// ParseString splits a comma-separated dish list and parses it.
func ParseString(s string) []LineItem {
	return Parse(strings.Split(s, ","))
}

func parseElement(element string) (string, int64, bool) {
	element = strings.TrimSpace(element)
	if element == "" {
		return "", 0, false
	}

	m := dishPattern.FindStringSubmatch(element)
	if m == nil {
		return "", 0, false
	}

	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", 0, false
	}

	price, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, false
	}

	amount := math.Round(price * 100)
	if amount < 0 || amount > float64(MaxUnitAmount) {
		return "", 0, false
	}

	return name, int64(amount), true
}

// Total returns the sum of unit amount times quantity in minor units. The sum
// saturates at math.MaxInt64 instead of wrapping.
func Total(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		if item.UnitAmount <= 0 || item.Quantity <= 0 {
			continue
		}
		if item.UnitAmount > (math.MaxInt64-total)/int64(item.Quantity) {
			return math.MaxInt64
		}
		total += item.UnitAmount * int64(item.Quantity)
	}
	return total
}

// Describe renders the items as the comma-joined display string stored on an
// order, e.g. "Isaw x2, BBQ x1".
func Describe(items []LineItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = fmt.Sprintf("%s x%d", item.Name, item.Quantity)
	}
	return strings.Join(parts, ", ")
}

// FormatAmount renders minor units as pesos, e.g. 3500 -> "₱35.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s₱%d.%02d", sign, minor/100, minor%100)
}
