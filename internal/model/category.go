package model

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Category is a search term with an informational priority tier.
type Category struct {
	Name string `json:"name" yaml:"name"`
	Tier int    `json:"tier" yaml:"tier"`
}

// DefaultCategories lists the built-in search terms by tier:
// 1 restaurants, 2 beauty and personal care, 3 services.
var DefaultCategories = map[int][]string{
	1: {
		"restaurant", "cafe", "bistro", "brasserie",
		"pizzeria", "fast food", "bakery", "bar",
	},
	2: {
		"hair salon", "nail salon", "beauty salon", "spa",
		"barbershop", "cosmetics", "tattoo",
	},
	3: {
		"car repair", "auto repair", "mechanic", "plumber", "electrician",
		"locksmith", "dry cleaner", "laundry", "pharmacy", "dentist",
		"veterinarian", "pet groomer", "gym", "fitness", "yoga",
		"massage", "acupuncture", "chiropractor", "lawyer", "accountant",
		"real estate", "moving company", "cleaning service", "landscaping",
		"roofer", "contractor",
	},
}

// CategoriesForTiers returns the built-in categories for the given tiers, in
// tier order. No tiers means all tiers.
func CategoriesForTiers(tiers ...int) []Category {
	if len(tiers) == 0 {
		for t := range DefaultCategories {
			tiers = append(tiers, t)
		}
	}
	sorted := append([]int(nil), tiers...)
	sort.Ints(sorted)

	var out []Category
	seen := make(map[int]bool)
	for _, t := range sorted {
		if seen[t] {
			continue
		}
		seen[t] = true
		for _, name := range DefaultCategories[t] {
			out = append(out, Category{Name: name, Tier: t})
		}
	}
	return out
}

// categoryFile is the on-disk layout of a category preset file.
type categoryFile struct {
	Categories []Category `yaml:"categories"`
}

// LoadCategories reads a YAML preset file of categories. Entries without a
// tier default to tier 1.
func LoadCategories(path string) ([]Category, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read categories %s", path)
	}
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "model: parse categories %s", path)
	}
	out := make([]Category, 0, len(f.Categories))
	for _, c := range f.Categories {
		if c.Name == "" {
			continue
		}
		if c.Tier == 0 {
			c.Tier = 1
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, eris.Errorf("model: no categories in %s", path)
	}
	return out, nil
}

// FilterTiers keeps the categories whose tier is listed. No tiers keeps all.
func FilterTiers(cats []Category, tiers ...int) []Category {
	if len(tiers) == 0 {
		return cats
	}
	want := make(map[int]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}
	var out []Category
	for _, c := range cats {
		if want[c.Tier] {
			out = append(out, c)
		}
	}
	return out
}
