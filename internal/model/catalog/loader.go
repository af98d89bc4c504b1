package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type document struct {
	Products []Product `json:"products" yaml:"products"`
}

// grouped is the category -> subcategory -> products layout.
type grouped map[string]map[string][]Product

// Load reads a catalog document from path. JSON and YAML are accepted, either
// as {"products": [...]} or grouped by category and subcategory. Any failure is
// logged and yields an empty catalog so the assistant keeps running.
func Load(path string) []Product {
	path = strings.TrimSpace(path)
	if path == "" {
		slog.Warn("catalog path not configured, starting with empty catalog")
		return nil
	}

	products, err := LoadFile(path)
	if err != nil {
		slog.Error("failed to load catalog, starting with empty catalog", "path", path, "error", err)
		return nil
	}

	slog.Info("catalog loaded", "path", path, "products", len(products))
	return products
}

// LoadFile is the strict variant of Load that reports errors to the caller.
func LoadFile(path string) ([]Product, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decode(raw, yaml.Unmarshal)
	default:
		return decode(raw, json.Unmarshal)
	}
}

func decode(raw []byte, unmarshal func([]byte, any) error) ([]Product, error) {
	var doc document
	if err := unmarshal(raw, &doc); err == nil && doc.Products != nil {
		return normalize(doc.Products), nil
	}

	var groups grouped
	if err := unmarshal(raw, &groups); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return normalize(groups.flatten()), nil
}

// flatten walks categories and subcategories in sorted order so load order is stable.
func (g grouped) flatten() []Product {
	categories := make([]string, 0, len(g))
	for category := range g {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var out []Product
	for _, category := range categories {
		subs := g[category]
		names := make([]string, 0, len(subs))
		for sub := range subs {
			names = append(names, sub)
		}
		sort.Strings(names)

		for _, sub := range names {
			for _, item := range subs[sub] {
				if item.Category == "" {
					item.Category = category
				}
				if item.Subcategory == "" {
					item.Subcategory = sub
				}
				out = append(out, item)
			}
		}
	}
	return out
}

func normalize(items []Product) []Product {
	out := make([]Product, 0, len(items))
	for _, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		item.Currency = item.CurrencyCode()
		out = append(out, item)
	}
	return out
}
