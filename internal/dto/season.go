package dto

import (
	"time"

	"github.com/noah-isme/school-registry/internal/models"
)

// SeasonDates carries the calendar of one season record.
type SeasonDates struct {
	Name           string    `json:"name" validate:"required,max=120"`
	StartDate      time.Time `json:"startDate" validate:"required"`
	EndDate        time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	EarlyRegDate   time.Time `json:"earlyRegDate" validate:"required"`
	NormalRegDate  time.Time `json:"normalRegDate" validate:"required"`
	LateRegDate    time.Time `json:"lateRegDate" validate:"required"`
	CloseRegDate   time.Time `json:"closeRegDate" validate:"required"`
	CancelDeadline time.Time `json:"cancelDeadline" validate:"required"`
}

// StartSemesterRequest opens a new academic year with its two terms.
type StartSemesterRequest struct {
	Year   SeasonDates `json:"year"`
	Fall   SeasonDates `json:"fall"`
	Spring SeasonDates `json:"spring"`
}

// SeasonTerms is a year record resolved to its fall and spring terms.
type SeasonTerms struct {
	Year   models.Season `json:"year"`
	Fall   models.Season `json:"fall"`
	Spring models.Season `json:"spring"`
}

// SeasonWindowResponse reports where a season's registration calendar stands.
type SeasonWindowResponse struct {
	SeasonID int64                     `json:"seasonId"`
	Window   models.RegistrationWindow `json:"window"`
	Open     bool                      `json:"open"`
	At       time.Time                 `json:"at"`
}
