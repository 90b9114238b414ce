package models

import "time"

// TherapyService is an entry in the clinic's service catalog.
type TherapyService struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Duration    int       `db:"duration" json:"duration"`
	Price       float64   `db:"price" json:"price"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TherapyServiceFilter captures filtering criteria for the catalog listing.
type TherapyServiceFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}
