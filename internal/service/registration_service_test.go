package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-registry/internal/dto"
	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type registrationFixture struct {
	db          *memDB
	svc         *RegistrationService
	mock        sqlmock.Sqlmock
	metrics     *MetricsService
	fall        models.Season
	spring      models.Season
	placeholder models.Arrangement
	section     models.Arrangement
}

func newRegistrationFixture(t *testing.T, seatLimit int, cancelDeadline time.Time) *registrationFixture {
	t.Helper()
	db := newMemDB()
	fall, spring := db.seedYear(testNow, cancelDeadline)
	placeholder := db.addArrangement(models.Arrangement{SeasonID: fall.ID, ClassID: 1, IsRegClass: true, TuitionW: money(400), BookFeeW: money(40), SpecialFeeW: money(10)})
	section := db.addArrangement(scheduledArrangement(fall.ID, seatLimit))
	db.addStudent(501, familyOne.FamilyID)
	db.addStudent(502, familyOne.FamilyID)
	db.addStudent(503, familyTwo.FamilyID)

	provider, mock := newTxProviderMock(t)
	metrics := NewMetricsService()
	svc := NewRegistrationService(
		fakeRegistrations{db}, fakeArrangements{db}, fakeSeasons{db}, fakeBalances{db}, fakeStudents{db},
		provider, metrics, nil, zap.NewNop(),
		WorkflowConfig{Clock: func() time.Time { return testNow }},
	)
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return &registrationFixture{db: db, svc: svc, mock: mock, metrics: metrics, fall: fall, spring: spring, placeholder: placeholder, section: section}
}

func (f *registrationFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *registrationFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func (f *registrationFixture) enroll(t *testing.T, actor models.Actor, studentID, arrangementID int64) *models.ClassRegistration {
	t.Helper()
	f.expectCommit()
	reg, err := f.svc.Enroll(context.Background(), actor, dto.EnrollRequest{StudentID: studentID, SeasonID: f.fall.ID, ArrangementID: arrangementID})
	require.NoError(t, err)
	return reg
}

func TestRegistrationEnrollChargesWholeTermPrice(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow.Add(72*time.Hour))

	reg := f.enroll(t, familyOne, 501, f.section.ID)

	assert.Equal(t, models.RegistrationSubmitted, reg.Status)
	assert.Equal(t, familyOne.FamilyID, reg.FamilyID)
	assert.Equal(t, f.section.ClassID, reg.ClassID)
	require.NotZero(t, reg.BalanceID)

	row := f.db.balances[reg.BalanceID]
	assert.Equal(t, models.BalanceTypeRegistration, row.Type)
	assert.True(t, row.Tuition.Equal(money(400)))
	assert.True(t, row.BookFee.Equal(money(40)))
	assert.True(t, row.SpecialFee.Equal(money(10)))
	assert.True(t, row.TotalAmount.Equal(money(450)))
	assert.True(t, row.Consistent())
}

func TestRegistrationEnrollInSpringChargesHalfTermPrice(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow.Add(72*time.Hour))
	springSection := f.db.addArrangement(scheduledArrangement(f.spring.ID, 5))

	f.expectCommit()
	reg, err := f.svc.Enroll(context.Background(), familyOne, dto.EnrollRequest{StudentID: 501, SeasonID: f.spring.ID, ArrangementID: springSection.ID})
	require.NoError(t, err)

	row := f.db.balances[reg.BalanceID]
	assert.True(t, row.TotalAmount.Equal(money(250)), row.TotalAmount.String())
	assert.True(t, row.Consistent())
}

func TestRegistrationEnrollRejectsClosedWindow(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow)
	closed := f.fall
	closed.CloseRegDate = testNow.Add(-time.Hour)
	closed.LateRegDate = testNow.Add(-2 * time.Hour)
	f.db.seasons[closed.ID] = closed

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyOne, dto.EnrollRequest{StudentID: 501, SeasonID: closed.ID, ArrangementID: f.section.ID})
	requireCode(t, err, appErrors.ErrRegistrationWindowClosed)
	assert.Empty(t, f.db.registrations)
	assert.Empty(t, f.db.balances)
}

func TestRegistrationEnrollEnforcesCapacity(t *testing.T) {
	f := newRegistrationFixture(t, 1, testNow.Add(72*time.Hour))
	f.enroll(t, familyOne, 501, f.section.ID)

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyTwo, dto.EnrollRequest{StudentID: 503, SeasonID: f.fall.ID, ArrangementID: f.section.ID})
	requireCode(t, err, appErrors.ErrCapacityExceeded)
	assert.Equal(t, 1, f.db.activeCount(f.section.ID))
	assert.Len(t, f.db.balances, 1)

	body := scrape(t, f.metrics)
	assert.Contains(t, body, `registrations_total{operation="enroll",outcome="ok"} 1`)
	assert.Contains(t, body, `registrations_total{operation="enroll",outcome="CAPACITY_EXCEEDED"} 1`)
}

func TestRegistrationEnrollRejectsDuplicate(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow.Add(72*time.Hour))
	f.enroll(t, familyOne, 501, f.section.ID)

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyOne, dto.EnrollRequest{StudentID: 501, SeasonID: f.fall.ID, ArrangementID: f.section.ID})
	requireCode(t, err, appErrors.ErrDuplicateRegistration)
}

func TestRegistrationEnrollAuthorization(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow.Add(72*time.Hour))

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyTwo, dto.EnrollRequest{StudentID: 501, SeasonID: f.fall.ID, ArrangementID: f.section.ID})
	requireCode(t, err, appErrors.ErrAuthorizationDenied)

	_, err = f.svc.Enroll(context.Background(), models.Actor{UserID: 3, Role: models.RoleTeacher}, dto.EnrollRequest{StudentID: 501, SeasonID: f.fall.ID, ArrangementID: f.section.ID})
	requireCode(t, err, appErrors.ErrAuthorizationDenied)
}

func TestRegistrationEnrollPlaceholderIsAdminOnly(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow.Add(72*time.Hour))

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyOne, dto.EnrollRequest{StudentID: 501, SeasonID: f.fall.ID, ArrangementID: f.placeholder.ID})
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)

	reg := f.enroll(t, adminActor, 501, f.placeholder.ID)
	assert.Equal(t, f.placeholder.ID, reg.ArrangementID)
}

func TestRegistrationEnrollRejectsForeignSeasonArrangement(t *testing.T) {
	f := newRegistrationFixture(t, 10, testNow.Add(72*time.Hour))
	springSection := f.db.addArrangement(scheduledArrangement(f.spring.ID, 5))

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyOne, dto.EnrollRequest{StudentID: 501, SeasonID: f.fall.ID, ArrangementID: springSection.ID})
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)
}

func TestRegistrationDistributeMovesBatch(t *testing.T) {
	f := newRegistrationFixture(t, 2, testNow.Add(72*time.Hour))
	f.enroll(t, adminActor, 501, f.placeholder.ID)
	f.enroll(t, adminActor, 503, f.placeholder.ID)

	f.expectCommit()
	res, err := f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves: []dto.DistributeMove{
			{StudentID: 501, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID},
			{StudentID: 503, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Moved)
	assert.Equal(t, 2, f.db.activeCount(f.section.ID))
	assert.Equal(t, 0, f.db.activeCount(f.placeholder.ID))
	for _, reg := range f.db.registrations {
		assert.Equal(t, f.section.ClassID, reg.ClassID)
	}
}

func TestRegistrationDistributeIsAllOrNothing(t *testing.T) {
	f := newRegistrationFixture(t, 1, testNow.Add(72*time.Hour))
	f.enroll(t, adminActor, 501, f.placeholder.ID)
	f.enroll(t, adminActor, 503, f.placeholder.ID)

	f.expectRollback()
	_, err := f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves: []dto.DistributeMove{
			{StudentID: 501, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID},
			{StudentID: 503, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID},
		},
	})
	requireCode(t, err, appErrors.ErrCapacityExceeded)
	assert.Zero(t, f.db.moves)
	assert.Equal(t, 2, f.db.activeCount(f.placeholder.ID))
}

func TestRegistrationDistributeCountsSeatsFreedInBatch(t *testing.T) {
	f := newRegistrationFixture(t, 1, testNow.Add(72*time.Hour))
	other := f.db.addArrangement(scheduledArrangement(f.fall.ID, 1))
	f.enroll(t, adminActor, 501, f.section.ID)
	f.enroll(t, adminActor, 503, f.placeholder.ID)

	f.expectCommit()
	res, err := f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves: []dto.DistributeMove{
			{StudentID: 501, FromArrangementID: f.section.ID, ToArrangementID: other.ID},
			{StudentID: 503, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Moved)
	assert.Equal(t, 1, f.db.activeCount(f.section.ID))
	assert.Equal(t, 1, f.db.activeCount(other.ID))
}

func TestRegistrationDistributeRejectsInvalidMoves(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(72*time.Hour))
	f.enroll(t, adminActor, 501, f.placeholder.ID)
	secondPlaceholder := f.db.addArrangement(models.Arrangement{SeasonID: f.fall.ID, ClassID: 2, IsRegClass: true})

	f.expectRollback()
	_, err := f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves:    []dto.DistributeMove{{StudentID: 501, FromArrangementID: f.placeholder.ID, ToArrangementID: secondPlaceholder.ID}},
	})
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)

	f.expectRollback()
	_, err = f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves:    []dto.DistributeMove{{StudentID: 502, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID}},
	})
	requireCode(t, err, appErrors.ErrRegistrationNotFound)

	_, err = f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves:    []dto.DistributeMove{{StudentID: 501, FromArrangementID: f.placeholder.ID}},
	})
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)

	_, err = f.svc.Distribute(context.Background(), familyOne, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves:    []dto.DistributeMove{{StudentID: 501, FromArrangementID: f.placeholder.ID, ToArrangementID: f.section.ID}},
	})
	requireCode(t, err, appErrors.ErrAuthorizationDenied)
	assert.Zero(t, f.db.moves)
}

func TestRegistrationRollbackReturnsStudentsToPlaceholder(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(72*time.Hour))
	f.enroll(t, familyOne, 501, f.section.ID)
	f.enroll(t, familyTwo, 503, f.section.ID)

	f.expectCommit()
	res, err := f.svc.Rollback(context.Background(), adminActor, dto.RollbackRequest{PlaceholderID: f.placeholder.ID, ArrangementIDs: []int64{f.section.ID}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Moved)
	assert.Equal(t, 0, f.db.activeCount(f.section.ID))
	assert.Equal(t, 2, f.db.activeCount(f.placeholder.ID))
}

func TestRegistrationRollbackRequiresPlaceholder(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(72*time.Hour))

	_, err := f.svc.Rollback(context.Background(), adminActor, dto.RollbackRequest{ArrangementIDs: []int64{f.section.ID}})
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)

	f.expectRollback()
	_, err = f.svc.Rollback(context.Background(), adminActor, dto.RollbackRequest{PlaceholderID: f.section.ID, ArrangementIDs: []int64{f.section.ID}})
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)
}

func TestRegistrationDropBeforeDeadlineRefundsAndDeletes(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(time.Hour))
	reg := f.enroll(t, familyOne, 501, f.section.ID)

	f.expectCommit()
	res, err := f.svc.Drop(context.Background(), familyOne, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropCancelledWithRefund, res.Outcome)
	require.NotNil(t, res.Refund)
	assert.True(t, res.Refund.Total().Equal(money(450)))

	_, exists := f.db.registrations[reg.ID]
	assert.False(t, exists)
	row := f.db.balances[reg.BalanceID]
	assert.True(t, row.TotalAmount.IsZero())
	assert.True(t, row.Consistent())
}

func TestRegistrationDropAtDeadlineMarksDropout(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow)
	reg := f.enroll(t, familyOne, 501, f.section.ID)

	f.expectCommit()
	res, err := f.svc.Drop(context.Background(), adminActor, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropMarkedDropout, res.Outcome)
	assert.Nil(t, res.Refund)

	stored := f.db.registrations[reg.ID]
	assert.Equal(t, models.RegistrationDropout, stored.Status)
	assert.Equal(t, models.RegistrationSubmitted, stored.PreviousStatus)
	assert.True(t, f.db.balances[reg.BalanceID].TotalAmount.Equal(money(450)))
	assert.Equal(t, 0, f.db.activeCount(f.section.ID))

	f.expectRollback()
	_, err = f.svc.Drop(context.Background(), adminActor, reg.ID)
	requireCode(t, err, appErrors.ErrConflict)
}

func TestRegistrationDropRefundsPriceChargedAtEnrollment(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(time.Hour))
	premium := scheduledArrangement(f.fall.ID, 3)
	premium.TuitionW = money(900)
	premium = f.db.addArrangement(premium)
	reg := f.enroll(t, adminActor, 501, f.placeholder.ID)

	f.expectCommit()
	_, err := f.svc.Distribute(context.Background(), adminActor, dto.DistributeRequest{
		SeasonID: f.fall.ID,
		Moves:    []dto.DistributeMove{{StudentID: 501, FromArrangementID: f.placeholder.ID, ToArrangementID: premium.ID}},
	})
	require.NoError(t, err)

	f.expectCommit()
	res, err := f.svc.Drop(context.Background(), adminActor, reg.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Refund)
	assert.True(t, res.Refund.Total().Equal(money(450)), res.Refund.Total().String())

	row := f.db.balances[reg.BalanceID]
	assert.True(t, row.TotalAmount.IsZero(), row.TotalAmount.String())
	assert.True(t, row.Tuition.IsZero())
	assert.True(t, row.Consistent())
}

func TestRegistrationDropAtDeadlineInSpringMarksDropoutSpring(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow)
	springSection := f.db.addArrangement(scheduledArrangement(f.spring.ID, 5))

	f.expectCommit()
	reg, err := f.svc.Enroll(context.Background(), familyOne, dto.EnrollRequest{StudentID: 501, SeasonID: f.spring.ID, ArrangementID: springSection.ID})
	require.NoError(t, err)

	f.expectCommit()
	res, err := f.svc.Drop(context.Background(), familyOne, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropMarkedDropout, res.Outcome)
	assert.Equal(t, models.RegistrationDropoutSpring, f.db.registrations[reg.ID].Status)
	assert.Equal(t, 0, f.db.activeCount(springSection.ID))
}

func TestRegistrationDropWithMissingArrangement(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(time.Hour))
	reg := f.enroll(t, familyOne, 501, f.section.ID)
	delete(f.db.arrangements, f.section.ID)

	f.expectRollback()
	_, err := f.svc.Drop(context.Background(), familyOne, reg.ID)
	requireCode(t, err, appErrors.ErrInvalidArrangementReference)
	assert.Contains(t, f.db.registrations, reg.ID)
	assert.True(t, f.db.balances[reg.BalanceID].TotalAmount.Equal(money(450)))
}

func TestRegistrationSeatFreedByDropCanBeRebooked(t *testing.T) {
	f := newRegistrationFixture(t, 2, testNow.Add(time.Hour))
	first := f.enroll(t, familyOne, 501, f.section.ID)
	f.enroll(t, familyOne, 502, f.section.ID)

	f.expectRollback()
	_, err := f.svc.Enroll(context.Background(), familyTwo, dto.EnrollRequest{StudentID: 503, SeasonID: f.fall.ID, ArrangementID: f.section.ID})
	requireCode(t, err, appErrors.ErrCapacityExceeded)

	f.expectCommit()
	res, err := f.svc.Drop(context.Background(), familyOne, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DropCancelledWithRefund, res.Outcome)
	assert.Equal(t, 1, f.db.activeCount(f.section.ID))

	third := f.enroll(t, familyTwo, 503, f.section.ID)
	assert.Equal(t, f.section.ID, third.ArrangementID)
	assert.Equal(t, 2, f.db.activeCount(f.section.ID))
	assert.True(t, f.db.familyBalanceTotal(familyOne.FamilyID).Equal(money(450)))
	assert.True(t, f.db.familyBalanceTotal(familyTwo.FamilyID).Equal(money(450)))
	assert.True(t, f.db.allBalancesConsistent())
}

func TestRegistrationDropByOtherFamilyIsDenied(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(time.Hour))
	reg := f.enroll(t, familyOne, 501, f.section.ID)

	f.expectRollback()
	_, err := f.svc.Drop(context.Background(), familyTwo, reg.ID)
	requireCode(t, err, appErrors.ErrAuthorizationDenied)

	f.expectRollback()
	_, err = f.svc.Drop(context.Background(), adminActor, 999999)
	requireCode(t, err, appErrors.ErrRegistrationNotFound)
}

func TestRegistrationListScopesFamilies(t *testing.T) {
	f := newRegistrationFixture(t, 5, testNow.Add(time.Hour))
	f.enroll(t, familyOne, 501, f.section.ID)
	f.enroll(t, familyTwo, 503, f.section.ID)

	regs, page, err := f.svc.List(context.Background(), familyOne, dto.RegistrationQuery{FamilyID: familyTwo.FamilyID})
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, familyOne.FamilyID, regs[0].FamilyID)
	assert.Equal(t, 1, page.Page)

	regs, _, err = f.svc.List(context.Background(), adminActor, dto.RegistrationQuery{})
	require.NoError(t, err)
	assert.Len(t, regs, 2)

	var ownedByOne int64
	for _, reg := range regs {
		if reg.FamilyID == familyOne.FamilyID {
			ownedByOne = reg.ID
		}
	}
	_, err = f.svc.Get(context.Background(), familyTwo, ownedByOne)
	requireCode(t, err, appErrors.ErrAuthorizationDenied)

	got, err := f.svc.Get(context.Background(), familyOne, ownedByOne)
	require.NoError(t, err)
	assert.Equal(t, ownedByOne, got.ID)
}
