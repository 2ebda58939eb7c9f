package models

import "time"

// Family is the billing unit that owns students and balance rows.
type Family struct {
	ID         int64     `db:"id" json:"id"`
	ParentName string    `db:"parent_name" json:"parent_name"`
	Email      string    `db:"email" json:"email"`
	Phone      string    `db:"phone" json:"phone"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Student is a child belonging to a family.
type Student struct {
	ID        int64      `db:"id" json:"id"`
	FamilyID  int64      `db:"family_id" json:"family_id"`
	FullName  string     `db:"full_name" json:"full_name"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
