package classify

import (
	"testing"

	"github.com/aman124598/upi-tracker/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		merchant string
		want     domain.Category
	}{
		{"zomato@paytm", domain.CategoryFood},
		{"SWIGGY", domain.CategoryFood},
		{"Amazon Pay India", domain.CategoryShopping},
		{"IRCTC Rail Connect", domain.CategoryTravel},
		{"bigbasket", domain.CategoryGroceries},
		{"Jio Prepaid Recharge", domain.CategoryRecharge},
		{"Netflix", domain.CategoryEntertainment},
		{"Apollo Pharmacy", domain.CategoryHealthcare},
		{"Electricity Board", domain.CategoryBills},
		{"Ramesh Kumar", domain.CategoryOthers},
		{"", domain.CategoryOthers},
	}

	c := New()
	for _, tt := range tests {
		t.Run(tt.merchant, func(t *testing.T) {
			if got := c.Classify(tt.merchant); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.merchant, got, tt.want)
			}
		})
	}
}

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	c := New()
	inputs := []string{"zomato", "random merchant 42", "", "AMAZON", "pvr inox"}

	valid := make(map[domain.Category]bool, len(domain.Categories))
	for _, cat := range domain.Categories {
		valid[cat] = true
	}

	for _, in := range inputs {
		first := c.Classify(in)
		if !valid[first] {
			t.Errorf("Classify(%q) = %q, not one of the fixed categories", in, first)
		}
		for i := 0; i < 10; i++ {
			if got := c.Classify(in); got != first {
				t.Fatalf("Classify(%q) not deterministic: %q then %q", in, first, got)
			}
		}
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	c := New()
	// Matches both Food ("zomato") and Shopping ("mall"); Food is declared
	// first.
	if got := c.Classify("zomato counter at city mall"); got != domain.CategoryFood {
		t.Errorf("Classify = %q, want %q", got, domain.CategoryFood)
	}
}

func TestSuggest(t *testing.T) {
	c := New()

	t.Run("ranked by hit count", func(t *testing.T) {
		// Food scores twice (zomato, cafe), Shopping once (mall).
		got := c.Suggest("zomato cafe at the mall")
		if len(got) < 2 {
			t.Fatalf("got %d suggestions, want at least 2", len(got))
		}
		if got[0] != domain.CategoryFood {
			t.Errorf("top suggestion = %q, want %q", got[0], domain.CategoryFood)
		}
		if got[1] != domain.CategoryShopping {
			t.Errorf("second suggestion = %q, want %q", got[1], domain.CategoryShopping)
		}
	})

	t.Run("no hits returns fixed fallback", func(t *testing.T) {
		got := c.Suggest("ramesh kumar")
		want := []domain.Category{domain.CategoryFood, domain.CategoryShopping, domain.CategoryBills}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})

	t.Run("at most three", func(t *testing.T) {
		got := c.Suggest("zomato amazon uber bigbasket jio netflix")
		if len(got) > 3 {
			t.Errorf("got %d suggestions, want at most 3", len(got))
		}
	})
}
