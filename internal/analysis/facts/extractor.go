package facts

import (
	"regexp"
	"strconv"
	"strings"
)

// Keys used in the persisted context data.
const (
	KeyProductInterest = "product_interest"
	KeyBudget          = "budget"
	KeyOrderRelated    = "order_related"
)

// Facts 表示从一句用户话语中抽取的结构化信息。
type Facts struct {
	ProductInterest string
	Budget          *int
	OrderRelated    bool
}

// productKeywords is scanned in order; a later hit overrides an earlier one,
// so "smartphone" wins over "phone".
var productKeywords = []string{"laptop", "phone", "smartphone", "shirt", "jeans", "coffee", "blender"}

var orderKeywords = []string{"order", "ordered", "purchase", "bought", "shipping", "delivery"}

var budgetPattern = regexp.MustCompile(`\$(\d+)`)

// Extract 根据关键词与金额模式提取用户意图。
func Extract(utterance string) Facts {
	normalized := strings.ToLower(strings.TrimSpace(utterance))
	if normalized == "" {
		return Facts{}
	}

	var f Facts
	for _, keyword := range productKeywords {
		if strings.Contains(normalized, keyword) {
			f.ProductInterest = keyword
		}
	}

	if m := budgetPattern.FindStringSubmatch(normalized); m != nil {
		// Amounts that overflow int are ignored rather than clamped.
		if v, err := strconv.Atoi(m[1]); err == nil {
			f.Budget = &v
		}
	}

	for _, keyword := range orderKeywords {
		if strings.Contains(normalized, keyword) {
			f.OrderRelated = true
			break
		}
	}

	return f
}

// Empty reports whether nothing was extracted.
func (f Facts) Empty() bool {
	return f.ProductInterest == "" && f.Budget == nil && !f.OrderRelated
}

// Map renders the facts as context data, omitting anything not found.
func (f Facts) Map() map[string]any {
	data := make(map[string]any, 3)
	if f.ProductInterest != "" {
		data[KeyProductInterest] = f.ProductInterest
	}
	if f.Budget != nil {
		data[KeyBudget] = *f.Budget
	}
	if f.OrderRelated {
		data[KeyOrderRelated] = true
	}
	return data
}
