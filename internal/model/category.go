package model

import (
	"strings"
	"time"
)

// Category represents a valid spending category. Identity is the lowercase
// name; two categories differing only in case are the same category.
type Category struct {
	CreatedAt   time.Time
	Name        string
	ParentName  string
	Description string
	Keywords    []string
	Examples    []string
	ID          int
	IsActive    bool
}

// Key returns the canonical lookup key for the category.
func (c Category) Key() string {
	return strings.ToLower(strings.TrimSpace(c.Name))
}

// FallbackCategoryName is used when no catalog category can be assigned.
const FallbackCategoryName = "Uncategorized"

// FindCategory resolves a name against a catalog, case-insensitively.
func FindCategory(categories []Category, name string) *Category {
	key := strings.ToLower(strings.TrimSpace(name))
	for i := range categories {
		if categories[i].Key() == key {
			return &categories[i]
		}
	}
	return nil
}

// FallbackCategory picks the catalog's uncategorized/other bucket, or the
// first category when no such bucket exists.
func FallbackCategory(categories []Category) *Category {
	for i := range categories {
		key := categories[i].Key()
		if key == "uncategorized" || key == "other" || strings.Contains(key, "other") {
			return &categories[i]
		}
	}
	if len(categories) > 0 {
		return &categories[0]
	}
	return nil
}
