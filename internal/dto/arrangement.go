package dto

import "github.com/shopspring/decimal"

// ArrangementPayload holds the editable columns of an arrangement.
type ArrangementPayload struct {
	ClassID     int64           `json:"classId" validate:"required,gt=0"`
	TeacherID   int64           `json:"teacherId" validate:"gte=0"`
	RoomID      int64           `json:"roomId" validate:"gte=0"`
	TimeSlotID  int64           `json:"timeSlotId" validate:"gte=0"`
	SeatLimit   *int            `json:"seatLimit" validate:"omitempty,gte=0"`
	AgeLimit    int             `json:"ageLimit" validate:"gte=0"`
	TuitionW    decimal.Decimal `json:"tuitionW"`
	BookFeeW    decimal.Decimal `json:"bookFeeW"`
	SpecialFeeW decimal.Decimal `json:"specialFeeW"`
	TuitionH    decimal.Decimal `json:"tuitionH"`
	BookFeeH    decimal.Decimal `json:"bookFeeH"`
	SpecialFeeH decimal.Decimal `json:"specialFeeH"`
	IsRegClass  bool            `json:"isRegClass"`
	Notes       string          `json:"notes" validate:"max=2000"`
}

// CreateArrangementRequest adds an arrangement to a season's catalog.
type CreateArrangementRequest struct {
	SeasonID int64 `json:"seasonId" validate:"required,gt=0"`
	ArrangementPayload
}

// UpdateArrangementRequest edits an arrangement before registration opens.
type UpdateArrangementRequest struct {
	ArrangementPayload
}
