package catalog

import "strings"

// DefaultMatchLimit caps how many products a single utterance may match.
const DefaultMatchLimit = 3

// Store exposes read-only catalog access for the assistant and HTTP handlers.
type Store interface {
	List() []Product
	Len() int
	FindByName(name string) (Product, bool)
	Match(utterance string, max int) []Product
	Search(query string) []Product
}

// MemoryStore implements Store over an ordered in-memory slice.
type MemoryStore struct {
	items []Product
}

// NewMemoryStore returns a MemoryStore holding a copy of items in their given order.
func NewMemoryStore(items []Product) *MemoryStore {
	return &MemoryStore{items: append([]Product(nil), items...)}
}

// List returns every product in load order.
func (s *MemoryStore) List() []Product {
	return append([]Product(nil), s.items...)
}

// Len reports the catalog size.
func (s *MemoryStore) Len() int {
	return len(s.items)
}

// FindByName looks up a product by case-insensitive exact name.
func (s *MemoryStore) FindByName(name string) (Product, bool) {
	name = strings.TrimSpace(name)
	for _, item := range s.items {
		if strings.EqualFold(item.Name, name) {
			return item, true
		}
	}
	return Product{}, false
}

// Match returns up to max products relevant to the utterance.
//
// The policy is deliberately coarse: a product is included when the whole
// lower-cased utterance, or any single whitespace token of it, occurs as a
// substring of the product's lower-cased name or description. Products are
// visited in load order and the scan stops once max entries are collected,
// so a later product with a stronger match can be left out.
func (s *MemoryStore) Match(utterance string, max int) []Product {
	query := strings.ToLower(strings.TrimSpace(utterance))
	if query == "" || max <= 0 {
		return nil
	}
	tokens := strings.Fields(query)

	var matched []Product
	for _, item := range s.items {
		if len(matched) >= max {
			break
		}
		name := strings.ToLower(item.Name)
		desc := strings.ToLower(item.Description)
		if containsAny(name, desc, query) || tokenHit(name, desc, tokens) {
			matched = append(matched, item)
		}
	}
	return matched
}

// Search finds products whose name, category or subcategory contains query.
func (s *MemoryStore) Search(query string) []Product {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var results []Product
	for _, item := range s.items {
		if strings.Contains(strings.ToLower(item.Name), query) ||
			strings.Contains(strings.ToLower(item.Category), query) ||
			strings.Contains(strings.ToLower(item.Subcategory), query) {
			results = append(results, item)
		}
	}
	return results
}

func containsAny(name, desc, needle string) bool {
	return strings.Contains(name, needle) || strings.Contains(desc, needle)
}

func tokenHit(name, desc string, tokens []string) bool {
	for _, token := range tokens {
		if containsAny(name, desc, token) {
			return true
		}
	}
	return false
}
