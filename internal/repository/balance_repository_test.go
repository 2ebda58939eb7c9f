package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-registry/internal/models"
)

func TestBalanceCreateRefusesInconsistentRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	row := &models.FamilyBalance{FamilyID: 100, SeasonID: 2, Tuition: decimal.NewFromInt(400), TotalAmount: decimal.NewFromInt(1)}
	err := repo.Create(context.Background(), nil, row)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceCreateChargeRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO family_balances").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(55, now, now))

	row := models.NewChargeRow(100, 2, models.Price{Tuition: decimal.NewFromInt(400), BookFee: decimal.NewFromInt(40), SpecialFee: decimal.NewFromInt(10)})
	require.NoError(t, repo.Create(context.Background(), nil, row))
	assert.Equal(t, int64(55), row.ID)
	assert.True(t, row.TotalAmount.Equal(decimal.NewFromInt(450)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBalanceLockForFamilyAndUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBalanceRepository(db)

	now := time.Now()
	columns := []string{"id", "family_id", "season_id", "registration_fee", "early_reg_discount", "late_reg_fee", "manage_fee",
		"duty_fee", "cleaning_fee", "other_fee", "tuition", "book_fee", "special_fee", "group_discount", "process_fee",
		"total_amount", "type", "status", "note", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery("FROM family_balances WHERE id = \\$1 AND family_id = \\$2 FOR UPDATE").
		WithArgs(int64(55), int64(100)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(55, 100, 2, "0", "0", "0", "0", "0", "0", "0", "400.00", "40.00", "10.00",
			"0", "0", "450.00", string(models.BalanceTypeRegistration), string(models.BalanceStatusOpen), "", now, now))
	mock.ExpectExec("UPDATE family_balances SET registration_fee").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	row, err := repo.LockForFamily(context.Background(), tx, 100, 55)
	require.NoError(t, err)
	assert.True(t, row.Consistent())

	row.ApplyPayment(decimal.NewFromInt(200))
	require.NoError(t, repo.UpdateAmounts(context.Background(), tx, row))
	require.NoError(t, tx.Commit())
	assert.True(t, row.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
