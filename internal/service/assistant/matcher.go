package assistant

import "github.com/zhouzirui/ecokart/backend/internal/model/catalog"

// Matcher selects catalog products relevant to an utterance.
type Matcher struct {
	catalog catalog.Store
	max     int
}

// NewMatcher creates a Matcher returning at most max products.
func NewMatcher(c catalog.Store, max int) *Matcher {
	return &Matcher{catalog: c, max: max}
}

// Match returns the products the utterance mentions, in catalog order.
func (m *Matcher) Match(utterance string) []catalog.Product {
	if m.catalog == nil {
		return nil
	}
	return m.catalog.Match(utterance, m.max)
}
