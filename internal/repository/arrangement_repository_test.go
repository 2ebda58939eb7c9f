package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-registry/internal/models"
)

func TestArrangementListFiltersPlaceholders(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewArrangementRepository(db)

	now := time.Now()
	columns := []string{"id", "season_id", "class_id", "teacher_id", "room_id", "time_slot_id", "seat_limit", "age_limit",
		"tuition_w", "book_fee_w", "special_fee_w", "tuition_h", "book_fee_h", "special_fee_h", "is_reg_class", "notes", "created_at", "updated_at"}
	placeholder := true
	mock.ExpectQuery("FROM arrangements WHERE season_id = \\$1 AND is_reg_class = \\$2 ORDER BY class_id, id").
		WithArgs(int64(2), true).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(10, 2, 1, 0, 0, 0, nil, 0, "0", "0", "0", "0", "0", "0", true, "", now, now))

	arrangements, err := repo.List(context.Background(), models.ArrangementFilter{SeasonID: 2, RegClasses: &placeholder})
	require.NoError(t, err)
	require.Len(t, arrangements, 1)
	assert.IsType(t, models.Placeholder{}, arrangements[0].Variant())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestArrangementRoster(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewArrangementRepository(db)

	now := time.Now()
	mock.ExpectQuery("JOIN students s ON s.id = cr.student_id").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"registration_id", "student_id", "student_name", "family_id", "status", "registered_at"}).
			AddRow(77, 501, "Ada", 100, 2, now))

	entries, err := repo.Roster(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Ada", entries[0].StudentName)
	assert.Equal(t, models.RegistrationRegistered, entries[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
