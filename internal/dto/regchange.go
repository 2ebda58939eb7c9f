package dto

// CreateChangeRequest lets a family ask to change a registration.
type CreateChangeRequest struct {
	RegistrationID      int64  `json:"registrationId" validate:"required,gt=0"`
	TargetArrangementID int64  `json:"targetArrangementId" validate:"gte=0"`
	Note                string `json:"note" validate:"max=1000"`
}

// ApproveChangeRequest names the registration the approved request belongs to.
type ApproveChangeRequest struct {
	RegistrationID int64 `json:"registrationId" validate:"required,gt=0"`
}
