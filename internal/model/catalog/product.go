package catalog

import (
	"strconv"
	"strings"
)

// DefaultCurrency is applied to catalog entries that omit a currency code.
const DefaultCurrency = "GBP"

var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
	"JPY": "¥",
	"INR": "₹",
}

// Product is a single catalog entry. Entries are immutable after load.
type Product struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Price       float64  `json:"price" yaml:"price"`
	Currency    string   `json:"currency,omitempty" yaml:"currency,omitempty"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
}

// CurrencyCode returns the upper-cased ISO code, falling back to DefaultCurrency.
func (p Product) CurrencyCode() string {
	code := strings.ToUpper(strings.TrimSpace(p.Currency))
	if code == "" {
		return DefaultCurrency
	}
	return code
}

// PriceLabel renders the price with its currency symbol, e.g. "£999" or "£19.99".
func (p Product) PriceLabel() string {
	amount := FormatAmount(p.Price)
	code := p.CurrencyCode()
	if symbol, ok := currencySymbols[code]; ok {
		return symbol + amount
	}
	return code + " " + amount
}

// FormatAmount prints an amount with the fewest digits that represent it exactly.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
