package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gatepass/gatepass/internal/db/models"
	"github.com/gatepass/gatepass/internal/db/repositories"
)

var errStore = errors.New("store unavailable")

// fakePasscodeStore is an in-memory PasscodeStore. AtomicIncrementUsage holds
// a mutex around the same check-and-increment the SQL conditional update
// performs, so the concurrency tests exercise the real quota semantics.
type fakePasscodeStore struct {
	mu        sync.Mutex
	passcodes map[string]*models.Passcode // by ID
	failWith  error

	markExpiredCalls int
	markExpiredErr   error
	createCalls      int
	createErrs       []error // consumed per Create call before succeeding
}

func newFakePasscodeStore(ps ...*models.Passcode) *fakePasscodeStore {
	s := &fakePasscodeStore{passcodes: make(map[string]*models.Passcode)}
	for _, p := range ps {
		s.passcodes[p.ID] = p
	}
	return s
}

func (s *fakePasscodeStore) Create(ctx context.Context, p *models.Passcode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if len(s.createErrs) > 0 {
		err := s.createErrs[0]
		s.createErrs = s.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if p.ID == "" {
		p.ID = "generated-" + p.Code
	}
	if p.Status == "" {
		p.Status = models.PasscodeStatusActive
	}
	s.passcodes[p.ID] = p
	return nil
}

func (s *fakePasscodeStore) GetByCode(ctx context.Context, code string) (*models.Passcode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, p := range s.passcodes {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakePasscodeStore) GetByID(ctx context.Context, id string) (*models.Passcode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	p, ok := s.passcodes[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakePasscodeStore) GetActiveByUser(ctx context.Context, userID string) (*models.Passcode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.passcodes {
		if p.UserID == userID && p.Status == models.PasscodeStatusActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakePasscodeStore) AtomicIncrementUsage(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	p, ok := s.passcodes[id]
	if !ok || p.Status != models.PasscodeStatusActive || p.UsageCount >= p.UsageLimit {
		return false, nil
	}
	p.UsageCount++
	if p.UsageCount >= p.UsageLimit {
		p.Status = models.PasscodeStatusExpired
	}
	return true, nil
}

func (s *fakePasscodeStore) MarkExpired(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markExpiredCalls++
	if s.markExpiredErr != nil {
		return s.markExpiredErr
	}
	if p, ok := s.passcodes[id]; ok && p.Status == models.PasscodeStatusActive {
		p.Status = models.PasscodeStatusExpired
	}
	return nil
}

func (s *fakePasscodeStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.passcodes[id]; ok && p.Status == models.PasscodeStatusActive {
		p.Status = models.PasscodeStatusRevoked
	}
	return nil
}

func (s *fakePasscodeStore) RevokeActiveByUser(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.passcodes {
		if p.UserID == userID && p.Status == models.PasscodeStatusActive {
			p.Status = models.PasscodeStatusRevoked
			n++
		}
	}
	return n, nil
}

// fakeUserDirectory is an in-memory UserDirectory
type fakeUserDirectory struct {
	users    map[string]*models.User
	failWith error
}

func newFakeUserDirectory(users ...*models.User) *fakeUserDirectory {
	d := &fakeUserDirectory{users: make(map[string]*models.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeUserDirectory) GetByID(ctx context.Context, id string) (*models.User, error) {
	if d.failWith != nil {
		return nil, d.failWith
	}
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// fakeApplicationStore is an in-memory VisitorApplicationStore
type fakeApplicationStore struct {
	apps map[string]*models.VisitorApplication
}

func newFakeApplicationStore(apps ...*models.VisitorApplication) *fakeApplicationStore {
	s := &fakeApplicationStore{apps: make(map[string]*models.VisitorApplication)}
	for _, a := range apps {
		s.apps[a.ID] = a
	}
	return s
}

func (s *fakeApplicationStore) GetByID(ctx context.Context, id string) (*models.VisitorApplication, error) {
	a, ok := s.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

// fakeRecorder captures records synchronously so tests can assert on them
// without racing the detached append.
type fakeRecorder struct {
	mu      sync.Mutex
	records []*models.AccessRecord
}

func (r *fakeRecorder) Record(rec *models.AccessRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *fakeRecorder) all() []*models.AccessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AccessRecord, len(r.records))
	copy(out, r.records)
	return out
}

// fakeAccessRecordStore is an in-memory AccessRecordStore for the recorder
// and device status tests
type fakeAccessRecordStore struct {
	mu       sync.Mutex
	records  []*models.AccessRecord
	counts   repositories.AccessCounts
	failWith error
}

func (s *fakeAccessRecordStore) Append(ctx context.Context, rec *models.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeAccessRecordStore) List(ctx context.Context, filters repositories.AccessRecordFilters, limit, offset int) ([]*models.AccessRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, 0, s.failWith
	}
	total := len(s.records)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return s.records[offset:end], total, nil
}

func (s *fakeAccessRecordStore) Counts(ctx context.Context, from, to time.Time, merchantID, deviceID *string) (repositories.AccessCounts, error) {
	if s.failWith != nil {
		return repositories.AccessCounts{}, s.failWith
	}
	return s.counts, nil
}

func (s *fakeAccessRecordStore) LatestByDevice(ctx context.Context, deviceID string) (*models.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var latest *models.AccessRecord
	for _, r := range s.records {
		if r.DeviceID != deviceID {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	return latest, nil
}
