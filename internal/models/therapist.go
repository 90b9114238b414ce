package models

import "time"

// Therapist represents a practising therapist.
type Therapist struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FullName    string    `db:"full_name" json:"full_name"`
	Phone       *string   `db:"phone" json:"phone,omitempty"`
	Speciality  *string   `db:"speciality" json:"speciality,omitempty"`
	LicenseNo   *string   `db:"license_no" json:"license_no,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TherapistFilter captures filtering criteria for listing therapists.
type TherapistFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
