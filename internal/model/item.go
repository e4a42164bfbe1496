// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"
)

// ItemType distinguishes the kinds of items the pipeline categorizes.
type ItemType string

// Item type constants.
const (
	ItemTypeTransaction ItemType = "transaction"
	ItemTypeOrder       ItemType = "order"
)

// Item is a transaction or purchased product line subject to categorization.
type Item struct {
	Date        time.Time
	ID          string
	Type        ItemType
	Merchant    string
	Name        string
	Description string
	// ExternalID is a stable catalog identifier (ASIN, SKU) when the item
	// comes from an order export. Empty for bank transactions.
	ExternalID string
	Amount     float64
}

// SearchText builds the lowercase text the rule and similarity engines
// match against.
func (i Item) SearchText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{i.Merchant, i.Name, i.Description} {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// DisplayName returns the best human-readable handle for the item.
func (i Item) DisplayName() string {
	if i.Merchant != "" {
		return i.Merchant
	}
	return i.Name
}
