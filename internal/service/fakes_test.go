package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-registry/internal/models"
	appErrors "github.com/noah-isme/school-registry/pkg/errors"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func requireCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want.Code, appErrors.FromError(err).Code, err.Error())
}

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

var (
	adminActor = models.Actor{UserID: 1, Role: models.RoleAdmin}
	familyOne  = models.Actor{UserID: 10, Role: models.RoleFamily, FamilyID: 100}
	familyTwo  = models.Actor{UserID: 20, Role: models.RoleFamily, FamilyID: 200}
)

// memDB is an in-memory store shared by the fake repositories.
type memDB struct {
	mu            sync.Mutex
	nextID        int64
	seasons       map[int64]models.Season
	arrangements  map[int64]models.Arrangement
	registrations map[int64]models.ClassRegistration
	balances      map[int64]models.FamilyBalance
	students      map[int64]models.Student
	families      map[int64]models.Family
	requests      map[int64]models.RegChangeRequest
	receipts      []models.PaymentReceipt
	moves         int
	failOn        string
}

func newMemDB() *memDB {
	return &memDB{
		nextID:        1000,
		seasons:       map[int64]models.Season{},
		arrangements:  map[int64]models.Arrangement{},
		registrations: map[int64]models.ClassRegistration{},
		balances:      map[int64]models.FamilyBalance{},
		students:      map[int64]models.Student{},
		families:      map[int64]models.Family{},
		requests:      map[int64]models.RegChangeRequest{},
	}
}

func (m *memDB) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memDB) fail(op string) error {
	if m.failOn == op {
		return fmt.Errorf("%s failed", op)
	}
	return nil
}

func (m *memDB) activeCount(arrangementID int64) int {
	n := 0
	for _, r := range m.registrations {
		if r.ArrangementID == arrangementID && r.Status.Active() {
			n++
		}
	}
	return n
}

// seedYear stores a year with fall and spring terms whose registration window is open at now.
func (m *memDB) seedYear(now time.Time, cancelDeadline time.Time) (fall, spring models.Season) {
	base := models.Season{
		Status:         models.SeasonStatusActive,
		EarlyRegDate:   now.Add(-48 * time.Hour),
		NormalRegDate:  now.Add(-24 * time.Hour),
		LateRegDate:    now.Add(24 * time.Hour),
		CloseRegDate:   now.Add(48 * time.Hour),
		CancelDeadline: cancelDeadline,
	}
	year := base
	year.ID, year.Name = 1, "2026-2027"
	fall = base
	fall.ID, fall.Name = 2, "Fall 2026"
	spring = base
	spring.ID, spring.Name = 3, "Spring 2027"
	year.BeginSeasonID, year.RelatedSeasonID = 1, 3
	fall.BeginSeasonID, fall.RelatedSeasonID = 1, 3
	spring.BeginSeasonID, spring.RelatedSeasonID = 1, 2
	m.seasons[1], m.seasons[2], m.seasons[3] = year, fall, spring
	return fall, spring
}

func (m *memDB) addArrangement(a models.Arrangement) models.Arrangement {
	if a.ID == 0 {
		a.ID = m.id()
	}
	m.arrangements[a.ID] = a
	return a
}

func (m *memDB) addStudent(id, familyID int64) {
	m.students[id] = models.Student{ID: id, FamilyID: familyID, FullName: fmt.Sprintf("Student %d", id)}
	if _, ok := m.families[familyID]; !ok {
		m.families[familyID] = models.Family{ID: familyID, ParentName: fmt.Sprintf("Parent %d", familyID), Email: fmt.Sprintf("family%d@example.com", familyID)}
	}
}

func (m *memDB) familyBalanceTotal(familyID int64) decimal.Decimal {
	total := decimal.Zero
	for _, b := range m.balances {
		if b.FamilyID == familyID {
			total = total.Add(b.TotalAmount)
		}
	}
	return total
}

func (m *memDB) allBalancesConsistent() bool {
	for _, b := range m.balances {
		if !b.Consistent() {
			return false
		}
	}
	return true
}

func seatLimit(n int) *int {
	return &n
}

func scheduledArrangement(seasonID int64, limit int) models.Arrangement {
	return models.Arrangement{
		SeasonID:    seasonID,
		ClassID:     seasonID*100 + int64(limit),
		TeacherID:   7,
		RoomID:      8,
		TimeSlotID:  9,
		SeatLimit:   seatLimit(limit),
		TuitionW:    money(400),
		BookFeeW:    money(40),
		SpecialFeeW: money(10),
		TuitionH:    money(220),
		BookFeeH:    money(25),
		SpecialFeeH: money(5),
	}
}

type fakeSeasons struct{ db *memDB }

func (f fakeSeasons) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Season, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.seasons[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f fakeSeasons) ListTerms(ctx context.Context, exec sqlx.ExtContext, yearID int64) ([]models.Season, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var terms []models.Season
	for _, s := range f.db.seasons {
		if s.BeginSeasonID == yearID && s.ID != yearID {
			terms = append(terms, s)
		}
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].ID < terms[j].ID })
	return terms, nil
}

func (f fakeSeasons) List(ctx context.Context, filter models.SeasonFilter) ([]models.Season, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Season
	for _, s := range f.db.seasons {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.YearOnly && !s.IsYear() {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f fakeSeasons) Create(ctx context.Context, exec sqlx.ExtContext, season *models.Season) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.fail("season.create"); err != nil {
		return err
	}
	season.ID = f.db.id()
	f.db.seasons[season.ID] = *season
	return nil
}

func (f fakeSeasons) Link(ctx context.Context, exec sqlx.ExtContext, id, beginID, relatedID int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s := f.db.seasons[id]
	s.BeginSeasonID, s.RelatedSeasonID = beginID, relatedID
	f.db.seasons[id] = s
	return nil
}

func (f fakeSeasons) RetireActive(ctx context.Context, exec sqlx.ExtContext) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for id, s := range f.db.seasons {
		if s.Status == models.SeasonStatusActive {
			s.Status = models.SeasonStatusInactive
			f.db.seasons[id] = s
			n++
		}
	}
	return n, nil
}

type fakeArrangements struct{ db *memDB }

func (f fakeArrangements) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Arrangement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.arrangements[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (f fakeArrangements) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.Arrangement, error) {
	return f.FindByID(ctx, tx, id)
}

func (f fakeArrangements) List(ctx context.Context, filter models.ArrangementFilter) ([]models.Arrangement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Arrangement
	for _, a := range f.db.arrangements {
		if filter.SeasonID != 0 && a.SeasonID != filter.SeasonID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeArrangements) Create(ctx context.Context, exec sqlx.ExtContext, a *models.Arrangement) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a.ID = f.db.id()
	f.db.arrangements[a.ID] = *a
	return nil
}

func (f fakeArrangements) Update(ctx context.Context, exec sqlx.ExtContext, a *models.Arrangement) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.arrangements[a.ID] = *a
	return nil
}

func (f fakeArrangements) Roster(ctx context.Context, arrangementID int64) ([]models.RosterEntry, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.RosterEntry
	for _, r := range f.db.registrations {
		if r.ArrangementID == arrangementID && r.Status.Active() {
			out = append(out, models.RosterEntry{RegistrationID: r.ID, StudentID: r.StudentID, FamilyID: r.FamilyID, Status: r.Status})
		}
	}
	return out, nil
}

type fakeRegistrations struct{ db *memDB }

func (f fakeRegistrations) FindByID(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.ClassRegistration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.registrations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (f fakeRegistrations) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.ClassRegistration, error) {
	return f.FindByID(ctx, tx, id)
}

func (f fakeRegistrations) FindActiveForStudent(ctx context.Context, exec sqlx.ExtContext, studentID, seasonID, arrangementID int64) (*models.ClassRegistration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.registrations {
		if r.StudentID == studentID && r.SeasonID == seasonID && r.ArrangementID == arrangementID && r.Status.Active() {
			return &r, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f fakeRegistrations) CountActive(ctx context.Context, exec sqlx.ExtContext, arrangementID int64) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.activeCount(arrangementID), nil
}

func (f fakeRegistrations) ExistsActive(ctx context.Context, exec sqlx.ExtContext, studentID, seasonID, arrangementID int64) (bool, error) {
	_, err := f.FindActiveForStudent(ctx, exec, studentID, seasonID, arrangementID)
	return err == nil, nil
}

func (f fakeRegistrations) CountActiveByFamilySeason(ctx context.Context, exec sqlx.ExtContext, familyID, seasonID int64) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	n := 0
	for _, r := range f.db.registrations {
		if r.FamilyID == familyID && r.SeasonID == seasonID && r.Status.Active() {
			n++
		}
	}
	return n, nil
}

func (f fakeRegistrations) Create(ctx context.Context, exec sqlx.ExtContext, reg *models.ClassRegistration) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.fail("registration.create"); err != nil {
		return err
	}
	reg.ID = f.db.id()
	f.db.registrations[reg.ID] = *reg
	return nil
}

func (f fakeRegistrations) Move(ctx context.Context, exec sqlx.ExtContext, id, arrangementID, classID int64, at time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r := f.db.registrations[id]
	r.ArrangementID, r.ClassID, r.UpdatedAt = arrangementID, classID, at
	f.db.registrations[id] = r
	f.db.moves++
	return nil
}

func (f fakeRegistrations) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id int64, status, previous models.RegistrationStatus, at time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r := f.db.registrations[id]
	r.Status, r.PreviousStatus, r.UpdatedAt = status, previous, at
	f.db.registrations[id] = r
	return nil
}

func (f fakeRegistrations) MarkRegistered(ctx context.Context, exec sqlx.ExtContext, familyID, seasonID, balanceID int64, at time.Time) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for id, r := range f.db.registrations {
		if r.FamilyID == familyID && r.SeasonID == seasonID && r.Status == models.RegistrationSubmitted {
			r.PreviousStatus, r.Status = r.Status, models.RegistrationRegistered
			if r.BalanceID == 0 {
				r.BalanceID = balanceID
			}
			f.db.registrations[id] = r
			n++
		}
	}
	return n, nil
}

func (f fakeRegistrations) Delete(ctx context.Context, exec sqlx.ExtContext, id int64) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.registrations, id)
	return nil
}

func (f fakeRegistrations) ListActiveByArrangement(ctx context.Context, exec sqlx.ExtContext, arrangementID int64) ([]models.ClassRegistration, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.ClassRegistration
	for _, r := range f.db.registrations {
		if r.ArrangementID == arrangementID && r.Status.Active() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeRegistrations) List(ctx context.Context, filter models.RegistrationFilter) ([]models.ClassRegistration, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.ClassRegistration
	for _, r := range f.db.registrations {
		if filter.FamilyID != 0 && r.FamilyID != filter.FamilyID {
			continue
		}
		if filter.SeasonID != 0 && r.SeasonID != filter.SeasonID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

type fakeBalances struct{ db *memDB }

func (f fakeBalances) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.FamilyBalance, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.balances[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (f fakeBalances) LockForFamily(ctx context.Context, tx sqlx.ExtContext, familyID, balanceID int64) (*models.FamilyBalance, error) {
	b, err := f.LockByID(ctx, tx, balanceID)
	if err != nil || b.FamilyID != familyID {
		return nil, sql.ErrNoRows
	}
	return b, nil
}

func (f fakeBalances) Create(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if !b.Consistent() {
		return fmt.Errorf("inconsistent balance row")
	}
	b.ID = f.db.id()
	f.db.balances[b.ID] = *b
	return nil
}

func (f fakeBalances) UpdateAmounts(ctx context.Context, exec sqlx.ExtContext, b *models.FamilyBalance) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if !b.Consistent() {
		return fmt.Errorf("inconsistent balance row")
	}
	f.db.balances[b.ID] = *b
	return nil
}

func (f fakeBalances) ListByFamilySeason(ctx context.Context, familyID, seasonID int64) ([]models.FamilyBalance, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.FamilyBalance
	for _, b := range f.db.balances {
		if b.FamilyID == familyID && b.SeasonID == seasonID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeStudents struct{ db *memDB }

func (f fakeStudents) FindStudent(ctx context.Context, exec sqlx.ExtContext, id int64) (*models.Student, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (f fakeStudents) FindByID(ctx context.Context, id int64) (*models.Family, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	fam, ok := f.db.families[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &fam, nil
}

type fakeRequests struct{ db *memDB }

func (f fakeRequests) LockByID(ctx context.Context, tx sqlx.ExtContext, id int64) (*models.RegChangeRequest, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (f fakeRequests) HasPending(ctx context.Context, exec sqlx.ExtContext, registrationID int64) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.requests {
		if r.RegistrationID == registrationID && r.Status == models.ChangeRequestPending {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeRequests) Create(ctx context.Context, exec sqlx.ExtContext, req *models.RegChangeRequest) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	req.ID = f.db.id()
	f.db.requests[req.ID] = *req
	return nil
}

func (f fakeRequests) Process(ctx context.Context, exec sqlx.ExtContext, id int64, status models.ChangeRequestStatus, processedBy int64, at time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r := f.db.requests[id]
	r.Status, r.ProcessedBy, r.ProcessedAt = status, &processedBy, &at
	f.db.requests[id] = r
	return nil
}

func (f fakeRequests) DeletePending(ctx context.Context, exec sqlx.ExtContext, registrationID, familyID int64) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var n int64
	for id, r := range f.db.requests {
		if r.RegistrationID == registrationID && r.FamilyID == familyID && r.Status == models.ChangeRequestPending {
			delete(f.db.requests, id)
			n++
		}
	}
	return n, nil
}

func (f fakeRequests) List(ctx context.Context, filter models.RegChangeFilter) ([]models.RegChangeRequest, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.RegChangeRequest
	for _, r := range f.db.requests {
		if filter.FamilyID != 0 && r.FamilyID != filter.FamilyID {
			continue
		}
		out = append(out, r)
	}
	return out, len(out), nil
}

type fakeReceipts struct{ db *memDB }

func (f fakeReceipts) ExistsReference(ctx context.Context, exec sqlx.ExtContext, reference string) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.receipts {
		if r.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeReceipts) Create(ctx context.Context, exec sqlx.ExtContext, receipt *models.PaymentReceipt) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	receipt.ID = f.db.id()
	f.db.receipts = append(f.db.receipts, *receipt)
	return nil
}

func (f fakeReceipts) ListByFamilySeason(ctx context.Context, familyID, seasonID int64) ([]models.PaymentReceipt, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.PaymentReceipt
	for _, r := range f.db.receipts {
		if r.FamilyID == familyID && f.db.balances[r.BalanceID].SeasonID == seasonID {
			out = append(out, r)
		}
	}
	return out, nil
}

// memCache is a CacheRepository backed by a map of JSON payloads.
type memCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{items: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

type recordingNotifier struct {
	mu       sync.Mutex
	decided  []models.RegChangeRequest
	payments []models.PaymentReceipt
}

func (n *recordingNotifier) ChangeRequestDecided(ctx context.Context, req models.RegChangeRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, req)
}

func (n *recordingNotifier) PaymentApplied(ctx context.Context, receipt models.PaymentReceipt, balance models.FamilyBalance) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payments = append(n.payments, receipt)
}
