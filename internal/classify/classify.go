// Package classify assigns a spending category to a record from its
// merchant text using fixed keyword rules. Classification is total and
// deterministic: the same merchant text always yields the same category,
// and the result is always one of the nine fixed values.
package classify

import (
	"strings"

	"github.com/aman124598/upi-tracker/internal/domain"
)

type categoryRule struct {
	category domain.Category
	keywords []string
}

// rules is an explicit ordered slice: categories are tried in declared
// order and, within a category, keywords in declared order. The first
// category with any matching keyword wins, so precedence never depends on
// map iteration order.
var rules = []categoryRule{
	{domain.CategoryFood, []string{
		"zomato", "swiggy", "dominos", "pizza", "mcdonald", "kfc",
		"burger", "biryani", "restaurant", "cafe", "dhaba", "eatery",
		"food", "dunkin", "subway",
	}},
	{domain.CategoryShopping, []string{
		"amazon", "flipkart", "myntra", "ajio", "meesho", "nykaa",
		"snapdeal", "shop", "mall", "store", "retail",
	}},
	{domain.CategoryBills, []string{
		"electricity", "water bill", "gas bill", "broadband", "wifi",
		"postpaid", "dth", "insurance", "emi", "loan", "rent", "bill",
	}},
	{domain.CategoryTravel, []string{
		"uber", "ola", "rapido", "irctc", "redbus", "makemytrip",
		"goibibo", "yatra", "flight", "train", "metro", "cab", "taxi",
		"petrol", "fuel", "toll",
	}},
	{domain.CategoryGroceries, []string{
		"bigbasket", "blinkit", "zepto", "instamart", "grofers", "dmart",
		"reliance fresh", "grocery", "groceries", "kirana", "supermarket",
		"mart",
	}},
	{domain.CategoryRecharge, []string{
		"recharge", "prepaid", "jio", "airtel", "vodafone", "vi ",
		"bsnl", "topup", "top-up",
	}},
	{domain.CategoryEntertainment, []string{
		"netflix", "hotstar", "prime video", "spotify", "bookmyshow",
		"pvr", "inox", "cinema", "movie", "gaming", "game",
	}},
	{domain.CategoryHealthcare, []string{
		"pharmacy", "pharma", "medical", "medplus", "apollo", "netmeds",
		"pharmeasy", "hospital", "clinic", "doctor", "diagnostic", "lab",
	}},
}

// suggestFallback is the fixed ordering returned by Suggest when no
// keyword scores at all: the first three declared categories.
var suggestFallback = []domain.Category{
	domain.CategoryFood,
	domain.CategoryShopping,
	domain.CategoryBills,
}

// Classifier matches merchant text against the keyword rules.
type Classifier struct{}

// New creates a classifier over the fixed rule table.
func New() *Classifier {
	return &Classifier{}
}

// Classify returns the first category with a matching keyword, or Others
// when nothing matches.
func (c *Classifier) Classify(merchantText string) domain.Category {
	text := normalize(merchantText)
	for _, rule := range rules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	return domain.CategoryOthers
}

// Suggest ranks categories by total keyword-hit count and returns up to
// three, ties broken by declared category order. When nothing scores it
// returns the fixed fallback ordering rather than an empty list.
func (c *Classifier) Suggest(merchantText string) []domain.Category {
	text := normalize(merchantText)

	type scored struct {
		category domain.Category
		hits     int
		order    int
	}
	var ranked []scored
	for i, rule := range rules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > 0 {
			ranked = append(ranked, scored{rule.category, hits, i})
		}
	}
	if len(ranked) == 0 {
		out := make([]domain.Category, len(suggestFallback))
		copy(out, suggestFallback)
		return out
	}

	// Stable selection sort: hit count descending, declared order on ties.
	for i := 0; i < len(ranked); i++ {
		best := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].hits > ranked[best].hits ||
				(ranked[j].hits == ranked[best].hits && ranked[j].order < ranked[best].order) {
				best = j
			}
		}
		ranked[i], ranked[best] = ranked[best], ranked[i]
	}

	limit := 3
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]domain.Category, 0, limit)
	for _, s := range ranked[:limit] {
		out = append(out, s.category)
	}
	return out
}

func normalize(merchantText string) string {
	return strings.ToLower(strings.TrimSpace(merchantText))
}
