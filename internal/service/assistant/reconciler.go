package assistant

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zhouzirui/ecokart/backend/internal/model/catalog"
)

const descriptionLabel = "Product Description (from catalog): "

// currencyPattern matches symbol-prefixed amounts ("$899", "£ 1,299.00") and
// amount-suffixed currency names ("899 USD", "20 bucks").
var currencyPattern = regexp.MustCompile(`(?i)[$£€¥₹]\s?\d[\d,]*(?:\.\d+)?|\b\d[\d,]*(?:\.\d+)?\s?(?:usd|gbp|eur|jpy|inr|dollars?|pounds?|euros?|bucks)\b`)

// Reconcile patches the reply with authoritative catalog facts when exactly
// one product matched. It reports whether the reply was changed.
//
// This is a textual patch: amounts the pattern misses survive and prose
// around them is left alone. Replies covering several products are returned
// untouched.
func Reconcile(reply string, matched []catalog.Product) (string, bool) {
	if len(matched) != 1 {
		return reply, false
	}
	return ReconcileProduct(reply, matched[0]), true
}

// ReconcileProduct applies the single-product patch. Running it on its own
// output yields the same text.
func ReconcileProduct(reply string, p catalog.Product) string {
	priceLine := PriceLine(p)
	block := descriptionBlock(p)

	// Drop anything a previous pass inserted before stripping amounts, since
	// the price line itself carries one.
	body := strings.ReplaceAll(reply, priceLine, "")
	if block != "" {
		body = strings.ReplaceAll(body, block, "")
	}
	body = strings.TrimRight(stripAmounts(body), " \t\r\n")

	out := priceLine
	if rest := strings.TrimLeft(body, " \t\r\n"); rest != "" {
		out += " " + rest
	}

	if name := strings.TrimSpace(p.Name); name != "" {
		namePattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name))
		out = namePattern.ReplaceAllLiteralString(out, name)
	}

	if block != "" && !strings.Contains(out, p.Description) {
		out += block
	}
	return out
}

// PriceLine is the authoritative sentence prepended to reconciled replies.
func PriceLine(p catalog.Product) string {
	return fmt.Sprintf("The price for %s is %s.", p.Name, p.PriceLabel())
}

func descriptionBlock(p catalog.Product) string {
	if strings.TrimSpace(p.Description) == "" {
		return ""
	}
	return "\n\n" + descriptionLabel + p.Description
}

// stripAmounts removes currency amounts and closes only the gap each one
// leaves behind; whitespace elsewhere in the reply is kept as written.
func stripAmounts(s string) string {
	matches := currencyPattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	out := make([]byte, 0, len(s))
	last := 0
	for _, m := range matches {
		out = append(out, s[last:m[0]]...)
		last = m[1]

		next := s[last:]
		switch {
		case next == "" || strings.IndexByte("\r\n.,!?;:", next[0]) >= 0:
			out = trimSpaceRight(out)
		case next[0] == ' ' || next[0] == '\t':
			if trimmed := trimSpaceRight(out); len(trimmed) < len(out) {
				out = trimmed
			} else if len(out) == 0 || out[len(out)-1] == '\n' {
				last += len(next) - len(strings.TrimLeft(next, " \t"))
			}
		}
	}
	return string(append(out, s[last:]...))
}

func trimSpaceRight(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}
