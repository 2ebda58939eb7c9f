package dto

import "github.com/noah-isme/school-registry/internal/models"

// EnrollRequest books a student into an arrangement.
type EnrollRequest struct {
	StudentID     int64 `json:"studentId" validate:"required,gt=0"`
	SeasonID      int64 `json:"seasonId" validate:"required,gt=0"`
	ArrangementID int64 `json:"arrangementId" validate:"required,gt=0"`
}

// DistributeMove moves one student between arrangements.
type DistributeMove struct {
	StudentID         int64 `json:"studentId" validate:"required,gt=0"`
	FromArrangementID int64 `json:"fromArrangementId" validate:"required,gt=0"`
	ToArrangementID   int64 `json:"toArrangementId" validate:"gte=0"`
}

// DistributeRequest is an all-or-nothing batch of moves within one season.
type DistributeRequest struct {
	SeasonID int64            `json:"seasonId" validate:"required,gt=0"`
	Moves    []DistributeMove `json:"moves" validate:"required,min=1,dive"`
}

// RollbackRequest returns every student of the listed arrangements to a placeholder.
type RollbackRequest struct {
	PlaceholderID  int64   `json:"placeholderId"`
	ArrangementIDs []int64 `json:"arrangementIds" validate:"required,min=1"`
}

// BatchResult reports how many registrations a batch operation moved.
type BatchResult struct {
	Moved int `json:"moved"`
}

// DropResult reports which branch a drop took and what was refunded.
type DropResult struct {
	RegistrationID int64              `json:"registrationId"`
	Outcome        models.DropOutcome `json:"outcome"`
	Refund         *models.Price      `json:"refund,omitempty"`
}

// RegistrationQuery mirrors supported listing filters.
type RegistrationQuery struct {
	FamilyID      int64 `form:"familyId"`
	StudentID     int64 `form:"studentId"`
	SeasonID      int64 `form:"seasonId"`
	ArrangementID int64 `form:"arrangementId"`
	Status        int   `form:"status"`
	Page          int   `form:"page"`
	PageSize      int   `form:"pageSize"`
}
