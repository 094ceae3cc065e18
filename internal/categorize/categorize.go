package categorize

import "strings"

const Other = "OTHER"

type merchant struct {
	keyword  string
	category string
}

// Checked in order; the first keyword found in the description wins.
var merchants = []merchant{
	{"walmart", "GROCERIES"},
	{"target", "SHOPPING"},
	{"mcdonalds", "DINING"},
	{"starbucks", "DINING"},
	{"shell", "GAS"},
	{"exxon", "GAS"},
	{"amazon", "SHOPPING"},
	{"netflix", "ENTERTAINMENT"},
	{"spotify", "ENTERTAINMENT"},
	{"uber", "TRANSPORTATION"},
}

type pattern struct {
	keywords []string
	category string
}

var fallbacks = []pattern{
	{[]string{"grocery", "supermarket"}, "GROCERIES"},
	{[]string{"gas", "fuel"}, "GAS"},
	{[]string{"restaurant", "cafe"}, "DINING"},
	{[]string{"transfer"}, "TRANSFER"},
	{[]string{"atm", "withdrawal"}, "ATM"},
}

// Category derives a spending category from a free-text description.
func Category(description string) string {
	desc := strings.ToLower(description)
	if strings.TrimSpace(desc) == "" {
		return Other
	}

	for _, m := range merchants {
		if strings.Contains(desc, m.keyword) {
			return m.category
		}
	}
	for _, p := range fallbacks {
		for _, kw := range p.keywords {
			if strings.Contains(desc, kw) {
				return p.category
			}
		}
	}
	return Other
}

// Merchant returns the first whitespace-delimited token of the description.
func Merchant(description string) string {
	fields := strings.Fields(description)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
