package models

import "time"

// ChangeRequestStatus is the stored state of a registration change request.
type ChangeRequestStatus int

const (
	ChangeRequestPending  ChangeRequestStatus = 1
	ChangeRequestApproved ChangeRequestStatus = 2
	ChangeRequestRejected ChangeRequestStatus = 3
)

func (s ChangeRequestStatus) String() string {
	switch s {
	case ChangeRequestPending:
		return "pending"
	case ChangeRequestApproved:
		return "approved"
	case ChangeRequestRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether the request can no longer change.
func (s ChangeRequestStatus) Terminal() bool {
	return s == ChangeRequestApproved || s == ChangeRequestRejected
}

// RegChangeRequest is a family's request to change an existing registration.
type RegChangeRequest struct {
	ID                  int64               `db:"id" json:"id"`
	RegistrationID      int64               `db:"registration_id" json:"registration_id"`
	FamilyID            int64               `db:"family_id" json:"family_id"`
	StudentID           int64               `db:"student_id" json:"student_id"`
	SeasonID            int64               `db:"season_id" json:"season_id"`
	TargetArrangementID int64               `db:"target_arrangement_id" json:"target_arrangement_id"`
	Status              ChangeRequestStatus `db:"status" json:"status"`
	ProcessedBy         *int64              `db:"processed_by" json:"processed_by,omitempty"`
	ProcessedAt         *time.Time          `db:"processed_at" json:"processed_at,omitempty"`
	Note                string              `db:"note" json:"note"`
	CreatedAt           time.Time           `db:"created_at" json:"created_at"`
}

// RegChangeFilter constrains change request listings.
type RegChangeFilter struct {
	FamilyID int64
	SeasonID int64
	Status   ChangeRequestStatus
	Page     int
	PageSize int
}
