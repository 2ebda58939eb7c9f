package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Arrangement is a per-season class offering.
type Arrangement struct {
	ID          int64           `db:"id" json:"id"`
	SeasonID    int64           `db:"season_id" json:"season_id"`
	ClassID     int64           `db:"class_id" json:"class_id"`
	TeacherID   int64           `db:"teacher_id" json:"teacher_id"`
	RoomID      int64           `db:"room_id" json:"room_id"`
	TimeSlotID  int64           `db:"time_slot_id" json:"time_slot_id"`
	SeatLimit   *int            `db:"seat_limit" json:"seat_limit,omitempty"`
	AgeLimit    int             `db:"age_limit" json:"age_limit"`
	TuitionW    decimal.Decimal `db:"tuition_w" json:"tuition_w"`
	BookFeeW    decimal.Decimal `db:"book_fee_w" json:"book_fee_w"`
	SpecialFeeW decimal.Decimal `db:"special_fee_w" json:"special_fee_w"`
	TuitionH    decimal.Decimal `db:"tuition_h" json:"tuition_h"`
	BookFeeH    decimal.Decimal `db:"book_fee_h" json:"book_fee_h"`
	SpecialFeeH decimal.Decimal `db:"special_fee_h" json:"special_fee_h"`
	IsRegClass  bool            `db:"is_reg_class" json:"is_reg_class"`
	Notes       string          `db:"notes" json:"notes"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// ArrangementVariant is either Placeholder or Scheduled.
type ArrangementVariant interface {
	arrangementVariant()
}

// Placeholder is the catch-all registration class students land in before distribution.
type Placeholder struct{}

// Scheduled is a real class section with a teacher, room and time slot.
type Scheduled struct {
	SeatLimit  int
	TeacherID  int64
	RoomID     int64
	TimeSlotID int64
}

func (Placeholder) arrangementVariant() {}
func (Scheduled) arrangementVariant()   {}

// Unlimited reports whether the section has no seat limit.
func (s Scheduled) Unlimited() bool {
	return s.SeatLimit <= 0
}

// HasRoom reports whether another student fits given the current active count.
func (s Scheduled) HasRoom(active int) bool {
	return s.Unlimited() || active < s.SeatLimit
}

// Variant returns the tagged form of the arrangement.
func (a Arrangement) Variant() ArrangementVariant {
	if a.IsRegClass {
		return Placeholder{}
	}
	limit := 0
	if a.SeatLimit != nil {
		limit = *a.SeatLimit
	}
	return Scheduled{SeatLimit: limit, TeacherID: a.TeacherID, RoomID: a.RoomID, TimeSlotID: a.TimeSlotID}
}

// TermLength tells which price triplet applies.
type TermLength string

const (
	TermWhole TermLength = "WHOLE"
	TermHalf  TermLength = "HALF"
)

// Price is the tuition/book/special triplet charged for one registration.
type Price struct {
	Term       TermLength      `json:"term"`
	Tuition    decimal.Decimal `json:"tuition"`
	BookFee    decimal.Decimal `json:"book_fee"`
	SpecialFee decimal.Decimal `json:"special_fee"`
}

// Total sums the triplet.
func (p Price) Total() decimal.Decimal {
	return p.Tuition.Add(p.BookFee).Add(p.SpecialFee)
}

// SelectPrice picks the whole-term triplet unless the registration season is
// the later half of its year, in which case the half-term triplet applies.
func SelectPrice(a Arrangement, registrationSeason Season) Price {
	if registrationSeason.IsLaterHalf() {
		return Price{Term: TermHalf, Tuition: a.TuitionH, BookFee: a.BookFeeH, SpecialFee: a.SpecialFeeH}
	}
	return Price{Term: TermWhole, Tuition: a.TuitionW, BookFee: a.BookFeeW, SpecialFee: a.SpecialFeeW}
}

// ArrangementFilter constrains catalog listings.
type ArrangementFilter struct {
	SeasonID   int64
	ClassID    int64
	TeacherID  int64
	RegClasses *bool
}

// RosterEntry is one student seated in an arrangement.
type RosterEntry struct {
	RegistrationID int64              `db:"registration_id" json:"registration_id"`
	StudentID      int64              `db:"student_id" json:"student_id"`
	StudentName    string             `db:"student_name" json:"student_name"`
	FamilyID       int64              `db:"family_id" json:"family_id"`
	Status         RegistrationStatus `db:"status" json:"status"`
	RegisteredAt   time.Time          `db:"registered_at" json:"registered_at"`
}
