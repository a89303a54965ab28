package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/coursekeeper/internal/common"
	"github.com/dmitrijs2005/coursekeeper/internal/dbx"
	"github.com/dmitrijs2005/coursekeeper/internal/server/models"
	codesrepo "github.com/dmitrijs2005/coursekeeper/internal/server/repositories/codes"
	usersrepo "github.com/dmitrijs2005/coursekeeper/internal/server/repositories/users"
)

// --- helpers ---

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// memCodes is an in-memory codes.Repository with the same ordering and
// validity rules as the SQL one.
type memCodes struct {
	mu     sync.Mutex
	rows   []*models.VerificationCode
	nextID int64
	calls  int

	// stale makes FindLatestValid ignore used and expiry flags.
	stale bool

	insertErr  error
	findErr    error
	markErr    error
	deleteErr  error
	deleteHits []int64
}

func (m *memCodes) Insert(_ context.Context, c *models.VerificationCode) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	m.nextID++
	row := *c
	row.ID = m.nextID
	m.rows = append(m.rows, &row)
	c.ID = row.ID
	return c, nil
}

func (m *memCodes) latest(match func(*models.VerificationCode) bool) (*models.VerificationCode, error) {
	var hits []*models.VerificationCode
	for _, r := range m.rows {
		if match(r) {
			hits = append(hits, r)
		}
	}
	if len(hits) == 0 {
		return nil, common.ErrorNotFound
	}
	sort.Slice(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].ID > hits[j].ID
	})
	cp := *hits[0]
	return &cp, nil
}

func (m *memCodes) FindLatestValid(_ context.Context, phone string, purpose models.Purpose, now time.Time) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.latest(func(r *models.VerificationCode) bool {
		return r.PhoneNumber == phone && r.Purpose == purpose && (m.stale || r.IsValid(now))
	})
}

func (m *memCodes) FindLatestAny(_ context.Context, phone string, purpose models.Purpose) (*models.VerificationCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.latest(func(r *models.VerificationCode) bool {
		return r.PhoneNumber == phone && r.Purpose == purpose
	})
}

func (m *memCodes) MarkUsed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.markErr != nil {
		return m.markErr
	}
	for _, r := range m.rows {
		if r.ID == id {
			r.Used = true
		}
	}
	return nil
}

func (m *memCodes) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.deleteHits = append(m.deleteHits, id)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memCodes) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var kept []*models.VerificationCode
	var n int64
	for _, r := range m.rows {
		if !r.ExpiresAt.After(now) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

func (m *memCodes) storageCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// memUsers is an in-memory users.Repository keyed by id.
type memUsers struct {
	mu   sync.Mutex
	byID map[string]*models.User

	createErr error
	getErr    error
	updateErr error
}

func newMemUsers(users ...*models.User) *memUsers {
	m := &memUsers{byID: map[string]*models.User{}}
	for _, u := range users {
		m.byID[u.ID] = u
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	for _, existing := range m.byID {
		if existing.PhoneNumber == u.PhoneNumber {
			return nil, common.ErrAlreadyExists
		}
	}
	cp := *u
	cp.RegisteredAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.byID[u.ID] = &cp
	u.RegisteredAt = cp.RegisteredAt
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.byID {
		if u.PhoneNumber == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) List(_ context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []*models.User
	for _, u := range m.byID {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cur, ok := m.byID[u.ID]
	if !ok {
		return common.ErrorNotFound
	}
	cur.Username, cur.RealName, cur.Email = u.Username, u.RealName, u.Email
	cur.StudentID, cur.TeacherID = u.StudentID, u.TeacherID
	cur.College, cur.Major, cur.ClassName = u.College, u.Major, u.ClassName
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id string, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	cur, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	cur.PasswordHash = hash
	return nil
}

type fakeRepoManager struct {
	u *memUsers
	c *memCodes
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Codes(db dbx.DBTX) codesrepo.Repository       { return m.c }

// fakeProvider records calls and answers with ok.
type fakeProvider struct {
	ok    bool
	sent  []string
	codes []string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) SendVerificationCode(_ context.Context, phone, code string) bool {
	p.sent = append(p.sent, phone)
	p.codes = append(p.codes, code)
	return p.ok
}
