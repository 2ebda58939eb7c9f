package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegistrationStatus is the stored status code of a class registration.
type RegistrationStatus int

const (
	RegistrationSubmitted     RegistrationStatus = 1
	RegistrationRegistered    RegistrationStatus = 2
	RegistrationDropout       RegistrationStatus = 3
	RegistrationDropoutSpring RegistrationStatus = 4
	RegistrationTransferred   RegistrationStatus = 5
	RegistrationPendingDrop   RegistrationStatus = 6
)

// ActiveRegistrationStatuses occupy a seat and count against capacity.
var ActiveRegistrationStatuses = []RegistrationStatus{
	RegistrationSubmitted,
	RegistrationRegistered,
	RegistrationPendingDrop,
}

// Active reports whether the registration occupies a seat.
func (s RegistrationStatus) Active() bool {
	for _, a := range ActiveRegistrationStatuses {
		if s == a {
			return true
		}
	}
	return false
}

func (s RegistrationStatus) String() string {
	switch s {
	case RegistrationSubmitted:
		return "submitted"
	case RegistrationRegistered:
		return "registered"
	case RegistrationDropout:
		return "dropout"
	case RegistrationDropoutSpring:
		return "dropout-spring"
	case RegistrationTransferred:
		return "transferred"
	case RegistrationPendingDrop:
		return "pending-drop"
	default:
		return "unknown"
	}
}

// ClassRegistration is a student's booking into an arrangement for a season.
type ClassRegistration struct {
	ID             int64              `db:"id" json:"id"`
	StudentID      int64              `db:"student_id" json:"student_id"`
	FamilyID       int64              `db:"family_id" json:"family_id"`
	SeasonID       int64              `db:"season_id" json:"season_id"`
	ArrangementID  int64              `db:"arrangement_id" json:"arrangement_id"`
	ClassID        int64              `db:"class_id" json:"class_id"`
	Status         RegistrationStatus `db:"status" json:"status"`
	PreviousStatus RegistrationStatus `db:"previous_status" json:"previous_status"`
	BalanceID      int64              `db:"balance_id" json:"balance_id"`
	ChargedTerm    TermLength         `db:"charged_term" json:"charged_term,omitempty"`
	ChargedTuition decimal.Decimal    `db:"charged_tuition" json:"charged_tuition"`
	ChargedBookFee decimal.Decimal    `db:"charged_book_fee" json:"charged_book_fee"`
	ChargedSpecial decimal.Decimal    `db:"charged_special_fee" json:"charged_special_fee"`
	RegisteredAt   time.Time          `db:"registered_at" json:"registered_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

// RecordCharge stores the price billed at enrollment.
func (r *ClassRegistration) RecordCharge(p Price) {
	r.ChargedTerm = p.Term
	r.ChargedTuition = p.Tuition
	r.ChargedBookFee = p.BookFee
	r.ChargedSpecial = p.SpecialFee
}

// ChargedPrice returns the price billed at enrollment. Rows written before the
// charge was recorded report false.
func (r ClassRegistration) ChargedPrice() (Price, bool) {
	if r.ChargedTerm == "" {
		return Price{}, false
	}
	return Price{Term: r.ChargedTerm, Tuition: r.ChargedTuition, BookFee: r.ChargedBookFee, SpecialFee: r.ChargedSpecial}, true
}

// RefundPrice is the charged price, falling back to the arrangement's current
// price for rows without a recorded charge.
func (r ClassRegistration) RefundPrice(a Arrangement, s Season) Price {
	if p, ok := r.ChargedPrice(); ok {
		return p
	}
	return SelectPrice(a, s)
}

// DropoutStatus is the status a late drop records in the season.
func DropoutStatus(s Season) RegistrationStatus {
	if s.IsLaterHalf() {
		return RegistrationDropoutSpring
	}
	return RegistrationDropout
}

// RegistrationFilter constrains registration listings.
type RegistrationFilter struct {
	FamilyID      int64
	StudentID     int64
	SeasonID      int64
	ArrangementID int64
	Status        RegistrationStatus
	Page          int
	PageSize      int
}

// DropOutcome reports which branch a drop took.
type DropOutcome string

const (
	DropCancelledWithRefund DropOutcome = "CANCELLED"
	DropMarkedDropout       DropOutcome = "DROPOUT"
)
