package extract

import (
	"regexp"
	"strings"

	"github.com/aman124598/upi-tracker/internal/domain"
)

// The rule tables below are explicit ordered slices: evaluation order is
// part of the contract, so none of them may be rewritten as maps.

// relevanceTokens gate messages into the pipeline. At least one must be
// present for the text to be considered a payment event at all.
var relevanceTokens = []string{
	"debited",
	"debit",
	"paid",
	"payment",
	"transferred",
	"transfer",
	"transaction",
	"txn",
	"sent",
	"upi",
	"gpay",
	"google pay",
	"phonepe",
	"paytm",
	"bhim",
}

// failureTokens identify failure notices. Checked after relevance and
// before any parsing.
var failureTokens = []string{
	"failed",
	"failure",
	"declined",
	"unsuccessful",
	"reversed",
	"reversal",
	"not completed",
	"could not be processed",
	"cancelled",
	"insufficient balance",
}

const numeral = `([0-9][0-9,]*(?:\.[0-9]+)?)`

// currency needs the word boundary: without it "rs" matches inside
// ordinary words ("covers 300") and fabricates an amount. The rupee sign
// is non-word, so it sits outside the \b alternation.
const currency = `(?:\b(?:rs\.?|inr)|₹)`

// amountRules in precedence order: debited-qualified forms first, then
// paid/sent forms, then generic currency mentions.
var amountRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)` + currency + `\s*` + numeral + `\s+(?:has\s+been\s+|is\s+|was\s+)?debited`),
	regexp.MustCompile(`(?i)debited\s+(?:by|for|with)\s+` + currency + `?\s*` + numeral),
	regexp.MustCompile(`(?i)(?:paid|sent)\s+` + currency + `\s*` + numeral),
	regexp.MustCompile(`(?i)` + currency + `\s*` + numeral),
	regexp.MustCompile(`(?i)\b` + numeral + `\s*(?:rs\.?|inr)\b`),
}

const merchantSpan = `([A-Za-z0-9@._\- ]+)`

// merchantRules in precedence order. Specific phrasings ("paid to",
// "to VPA") come before the bare "to" catch-all.
var merchantRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bpaid\s+to\s+` + merchantSpan),
	regexp.MustCompile(`(?i)\bin\s+favou?r\s+of\s+` + merchantSpan),
	regexp.MustCompile(`(?i)\bto\s+vpa\s+([A-Za-z0-9@._\-]+)`),
	regexp.MustCompile(`(?i)\bvpa\s+([A-Za-z0-9@._\-]+)`),
	regexp.MustCompile(`(?i)\btowards\s+` + merchantSpan),
	regexp.MustCompile(`(?i)\bto\s+` + merchantSpan),
	regexp.MustCompile(`(?i)\bat\s+` + merchantSpan),
}

const (
	merchantMinLen = 2
	merchantMaxLen = 100
)

// merchantStopwords terminate a captured merchant span: everything from
// the first stopword on belongs to the rest of the sentence, not the
// payee name.
var merchantStopwords = map[string]bool{
	"on":    true,
	"via":   true,
	"using": true,
	"from":  true,
	"with":  true,
	"for":   true,
	"ref":   true,
	"utr":   true,
	"info":  true,
	"avl":   true,
	"bal":   true,
	"is":    true,
	"has":   true,
	"a/c":   true,
}

var disallowedMerchantChars = regexp.MustCompile(`[^A-Za-z0-9@._\- ]+`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// sanitizeMerchant collapses whitespace, strips characters outside the
// allowed set and truncates the span at the first stopword.
func sanitizeMerchant(raw string) string {
	cleaned := disallowedMerchantChars.ReplaceAllString(raw, " ")
	cleaned = whitespaceRun.ReplaceAllString(strings.TrimSpace(cleaned), " ")

	words := strings.Split(cleaned, " ")
	kept := words[:0]
	for _, w := range words {
		if merchantStopwords[strings.ToLower(w)] {
			break
		}
		kept = append(kept, w)
	}
	return strings.Trim(strings.Join(kept, " "), ".-_ ")
}

type originRule struct {
	tokens []string
	origin domain.Origin
}

// originRules in priority order: named payment apps before generic bank
// tokens.
var originRules = []originRule{
	{tokens: []string{"gpay", "google pay"}, origin: domain.OriginGPay},
	{tokens: []string{"phonepe"}, origin: domain.OriginPhonePe},
	{tokens: []string{"paytm"}, origin: domain.OriginPaytm},
	{tokens: []string{"bhim"}, origin: domain.OriginBHIM},
	{tokens: []string{
		"bank", "a/c", "acct", "account",
		"sbi", "hdfc", "icici", "axis", "kotak", "pnb", "canara",
		"bob", "indusind", "yes bank", "idfc", "federal",
	}, origin: domain.OriginBank},
}

var vpaHandleRule = regexp.MustCompile(`[a-z0-9._\-]+@[a-z0-9._\-]+`)

func maskVPAHandles(lower string) string {
	return vpaHandleRule.ReplaceAllString(lower, " ")
}

// refLabelRule matches reference/UTR-labelled tokens; bareRefRule is the
// 12-digit fallback.
var (
	refLabelRule = regexp.MustCompile(`(?i)\b(?:ref(?:erence)?(?:\s*(?:no|num|number|id))?|utr|txn\s*id)[\s.:#-]*([A-Za-z0-9]{6,})`)
	bareRefRule  = regexp.MustCompile(`\b([0-9]{12})\b`)
)

// dateTokenRule finds date-like tokens: 15-Nov-24, 15/11/2024,
// 2024-11-15 and separator variants.
var dateTokenRule = regexp.MustCompile(`\b(?:\d{1,2}[-/][A-Za-z]{3}[-/]\d{2,4}|\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}-\d{2}-\d{2})\b`)

// dateLayouts tried in order after normalizing separators to "-".
var dateLayouts = []string{
	"2-Jan-06",
	"2-Jan-2006",
	"02-01-2006",
	"2-1-2006",
	"02-01-06",
	"2-1-06",
	"2006-01-02",
}
