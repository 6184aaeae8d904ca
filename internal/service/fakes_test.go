package service

import (
	"context"
	"sync"
	"time"

	"github.com/Brownie44l1/marketguard/internal/models"
	"github.com/Brownie44l1/marketguard/internal/notification"
)

// ==============================================
// IN-MEMORY STORE
// ==============================================

// memStore honours the same conditional-update contract as the SQL
// repositories.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	requests map[int64]models.VerificationRequest
	attrs    map[int64]map[models.VerificationType]string
	sessions map[string]models.Session
	current  map[int64]string
	revoked  map[string]bool
	locks    map[string]models.SystemLock

	// failConsume makes ConsumeAndApply return an infrastructure error.
	failConsume error
}

func newMemStore() *memStore {
	return &memStore{
		requests: make(map[int64]models.VerificationRequest),
		attrs:    make(map[int64]map[models.VerificationType]string),
		sessions: make(map[string]models.Session),
		current:  make(map[int64]string),
		revoked:  make(map[string]bool),
		locks:    make(map[string]models.SystemLock),
	}
}

func (m *memStore) addUser(id int64, email, phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attrs[id] = map[models.VerificationType]string{
		models.VerificationTypeEmail: email,
		models.VerificationTypePhone: phone,
	}
}

func (m *memStore) attr(id int64, t models.VerificationType) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attrs[id][t]
}

func (m *memStore) request(id int64) models.VerificationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[id]
}

// ---- verification ----

type memVerificationRepo struct{ *memStore }

func (r memVerificationRepo) Create(ctx context.Context, req *models.VerificationRequest) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var superseded int64
	for id, existing := range r.requests {
		if existing.UserID == req.UserID && existing.Type == req.Type && existing.Status == models.VerificationPending {
			existing.Status = models.VerificationCancelled
			at := req.CreatedAt
			existing.ResolvedAt = &at
			r.requests[id] = existing
			superseded++
		}
	}

	r.nextID++
	req.ID = r.nextID
	req.Status = models.VerificationPending
	r.requests[req.ID] = *req
	return superseded, nil
}

func (r memVerificationRepo) FindByIDAndOwner(ctx context.Context, id, userID int64) (*models.VerificationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok || req.UserID != userID {
		return nil, models.ErrNotFound
	}
	return &req, nil
}

func (r memVerificationRepo) Regenerate(ctx context.Context, id, userID int64, codeHash string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok || req.UserID != userID || req.Status != models.VerificationPending {
		return false, nil
	}
	req.CodeHash = codeHash
	req.ExpiresAt = expiresAt
	r.requests[id] = req
	return true, nil
}

func (r memVerificationRepo) Cancel(ctx context.Context, id, userID int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok || req.UserID != userID || req.Status != models.VerificationPending {
		return false, nil
	}
	req.Status = models.VerificationCancelled
	req.ResolvedAt = &now
	r.requests[id] = req
	return true, nil
}

func (r memVerificationRepo) ConsumeAndApply(ctx context.Context, in *models.VerificationRequest, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failConsume != nil {
		return false, r.failConsume
	}

	req, ok := r.requests[in.ID]
	if !ok || req.UserID != in.UserID || req.Status != models.VerificationPending ||
		req.CodeHash != in.CodeHash || !req.ExpiresAt.After(now) {
		return false, nil
	}

	for id, attrs := range r.attrs {
		if id != req.UserID && attrs[req.Type] == req.TargetValue {
			return false, models.Validationf("%s is already in use", req.Type)
		}
	}

	req.Status = models.VerificationConsumed
	req.ResolvedAt = &now
	r.requests[in.ID] = req
	r.attrs[req.UserID][req.Type] = req.TargetValue
	return true, nil
}

// ---- users ----

type memUserRepo struct{ *memStore }

func (r memUserRepo) CurrentValue(ctx context.Context, userID int64, t models.VerificationType) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs, ok := r.attrs[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return attrs[t], nil
}

func (r memUserRepo) IsValueTaken(ctx context.Context, t models.VerificationType, value string, exceptUserID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, attrs := range r.attrs {
		if id != exceptUserID && attrs[t] == value {
			return true, nil
		}
	}
	return false, nil
}

// ---- system lock ----

type memLockRepo struct{ *memStore }

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (r memLockRepo) Ensure(ctx context.Context, key string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.locks[key]; !ok {
		r.locks[key] = models.SystemLock{Key: key, Status: models.LockOpen, UpdatedAt: now}
	}
	return nil
}

func (r memLockRepo) Get(ctx context.Context, key string) (*models.SystemLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &lock, nil
}

func (r memLockRepo) CompareAndSet(ctx context.Context, expected, next *models.SystemLock) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[expected.Key]
	if !ok || lock.Status != expected.Status || !sameTime(lock.LockTime, expected.LockTime) {
		return false, nil
	}
	r.locks[expected.Key] = *next
	return true, nil
}

func (r memLockRepo) Put(ctx context.Context, lock *models.SystemLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks[lock.Key] = *lock
	return nil
}

// ---- sessions ----

type memSessionRepo struct {
	*memStore
	// afterInvalidate runs between the two eviction phases.
	afterInvalidate func()
}

func (r *memSessionRepo) currentLocked(userID int64) string {
	id := r.current[userID]
	if s, ok := r.sessions[id]; ok && s.UserID == userID {
		return id
	}
	return ""
}

func (r *memSessionRepo) CurrentSessionID(ctx context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attrs[userID]; !ok {
		return "", models.ErrNotFound
	}
	return r.currentLocked(userID), nil
}

func (r *memSessionRepo) Create(ctx context.Context, s *models.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.attrs[s.UserID]; !ok {
		return false, models.ErrNotFound
	}
	if current := r.currentLocked(s.UserID); current != "" && current != s.ID {
		return false, nil
	}
	r.sessions[s.ID] = *s
	r.current[s.UserID] = s.ID
	return true, nil
}

func (r *memSessionRepo) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revoked[sessionID], nil
}

func (r *memSessionRepo) InvalidateOthers(ctx context.Context, userID int64, keepID string) (int64, error) {
	r.mu.Lock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID && id != keepID {
			s.LastActivity = models.InvalidatedActivity
			r.sessions[id] = s
			n++
		}
	}
	r.mu.Unlock()

	if r.afterInvalidate != nil {
		r.afterInvalidate()
	}
	return n, nil
}

func (r *memSessionRepo) AdoptExclusive(ctx context.Context, s *models.Session) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[s.ID]; ok && existing.UserID != s.UserID {
		return 0, models.ErrNotFound
	}

	var evicted int64
	for id, other := range r.sessions {
		if other.UserID == s.UserID && id != s.ID {
			r.revoked[id] = true
			delete(r.sessions, id)
			evicted++
		}
	}
	r.sessions[s.ID] = *s
	r.current[s.UserID] = s.ID
	return evicted, nil
}

func (r *memSessionRepo) DeleteIfNotCurrent(ctx context.Context, userID int64, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID || r.current[userID] == sessionID {
		return false, nil
	}
	delete(r.sessions, sessionID)
	return true, nil
}

func (r *memSessionRepo) Delete(ctx context.Context, userID int64, sessionID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current[userID] == sessionID {
		delete(r.current, userID)
	}
	if s, ok := r.sessions[sessionID]; ok && s.UserID == userID {
		r.revoked[sessionID] = true
		delete(r.sessions, sessionID)
	}
	return nil
}

func (r *memSessionRepo) Touch(ctx context.Context, userID int64, sessionID string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID || r.current[userID] != sessionID || s.LastActivity == models.InvalidatedActivity {
		return false, nil
	}
	s.LastActivity = now.Unix()
	r.sessions[sessionID] = s
	return true, nil
}

func (r *memSessionRepo) live(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.sessions {
		if s.UserID == userID && s.LastActivity != models.InvalidatedActivity {
			ids = append(ids, id)
		}
	}
	return ids
}

// ==============================================
// COLLABORATORS
// ==============================================

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	userID  int64
	channel string
	msg     notification.Message
}

func (n *recordingNotifier) Send(ctx context.Context, userID int64, channel string, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMessage{userID: userID, channel: channel, msg: msg})
	return n.err
}

func (n *recordingNotifier) last() sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

// plainHasher keeps manager tests fast; bcrypt is covered in internal/auth.
type plainHasher struct{}

func (plainHasher) Hash(code string) (string, error) { return "h:" + code, nil }
func (plainHasher) Matches(code, hash string) bool { return hash == "h:"+code }

// localSection is an in-process stand-in for the Redis critical section.
type localSection struct {
	mu    sync.Mutex
	users map[string]*sync.Mutex
	err   error
}

func (l *localSection) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}

	l.mu.Lock()
	if l.users == nil {
		l.users = make(map[string]*sync.Mutex)
	}
	m, ok := l.users[name]
	if !ok {
		m = &sync.Mutex{}
		l.users[name] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}
