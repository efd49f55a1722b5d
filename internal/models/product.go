package models

import "time"

// Product mirrors the document shape the managed backend stores for an
// inventory item. Not a gorm model; products never touch postgres here.
type Product struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Quantity   int        `json:"quantity"`
	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
}
