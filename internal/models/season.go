package models

import "time"

// SeasonStatus marks whether a season still accepts registrations.
type SeasonStatus string

const (
	SeasonStatusActive   SeasonStatus = "ACTIVE"
	SeasonStatusInactive SeasonStatus = "INACTIVE"
)

// Season is an academic year record or one of its fall/spring terms.
//
// A year record points BeginSeasonID at itself and RelatedSeasonID at its
// spring term. Fall points at (year, spring), spring at (year, fall).
type Season struct {
	ID              int64        `db:"id" json:"id"`
	Name            string       `db:"name" json:"name"`
	Status          SeasonStatus `db:"status" json:"status"`
	StartDate       time.Time    `db:"start_date" json:"start_date"`
	EndDate         time.Time    `db:"end_date" json:"end_date"`
	EarlyRegDate    time.Time    `db:"early_reg_date" json:"early_reg_date"`
	NormalRegDate   time.Time    `db:"normal_reg_date" json:"normal_reg_date"`
	LateRegDate     time.Time    `db:"late_reg_date" json:"late_reg_date"`
	CloseRegDate    time.Time    `db:"close_reg_date" json:"close_reg_date"`
	CancelDeadline  time.Time    `db:"cancel_deadline" json:"cancel_deadline"`
	BeginSeasonID   int64        `db:"begin_season_id" json:"begin_season_id"`
	RelatedSeasonID int64        `db:"related_season_id" json:"related_season_id"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// IsYear reports whether the season is the year record of a fall/spring pair.
func (s Season) IsYear() bool {
	return s.ID != 0 && s.BeginSeasonID == s.ID
}

// IsLaterHalf reports whether the season is the spring half of its year.
func (s Season) IsLaterHalf() bool {
	if s.IsYear() || s.RelatedSeasonID == 0 {
		return false
	}
	return s.ID > s.RelatedSeasonID
}

// RegistrationWindow is the phase of a season's registration calendar.
type RegistrationWindow string

const (
	WindowNotOpen RegistrationWindow = "NOT_OPEN"
	WindowEarly   RegistrationWindow = "EARLY"
	WindowNormal  RegistrationWindow = "NORMAL"
	WindowLate    RegistrationWindow = "LATE"
	WindowClosed  RegistrationWindow = "CLOSED"
)

// Open reports whether bookings are accepted in this phase.
func (w RegistrationWindow) Open() bool {
	return w == WindowEarly || w == WindowNormal || w == WindowLate
}

// Classify places now within the season's registration calendar.
func Classify(now time.Time, season Season) RegistrationWindow {
	switch {
	case now.Before(season.EarlyRegDate):
		return WindowNotOpen
	case now.Before(season.NormalRegDate):
		return WindowEarly
	case now.Before(season.LateRegDate):
		return WindowNormal
	case now.Before(season.CloseRegDate):
		return WindowLate
	default:
		return WindowClosed
	}
}

// SeasonFilter defines filters supported by season listings.
type SeasonFilter struct {
	Status   SeasonStatus
	YearOnly bool
	Page     int
	PageSize int
}
