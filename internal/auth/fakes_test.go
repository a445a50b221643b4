// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memAccounts enforces the same case-insensitive uniqueness as the
// PostgreSQL schema.
type memAccounts struct {
	mu         sync.Mutex
	byID       map[ulid.ULID]*auth.Account
	createErr  error
	findErr    error
	creates    int
	increments int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[ulid.ULID]*auth.Account)}
}

func (m *memAccounts) Create(_ context.Context, account *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byID {
		switch {
		case strings.EqualFold(existing.Email, account.Email):
			return auth.DuplicateField(auth.FieldEmail)
		case strings.EqualFold(existing.Username, account.Username):
			return auth.DuplicateField(auth.FieldUsername)
		case existing.Phone != nil && account.Phone != nil && *existing.Phone == *account.Phone:
			return auth.DuplicateField(auth.FieldPhone)
		}
	}
	stored := *account
	m.byID[account.ID] = &stored
	return nil
}

func (m *memAccounts) FindByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		out := *a
		return &out, nil
	}
	return nil, oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, a := range m.byID {
		if strings.EqualFold(a.Email, email) {
			out := *a
			return &out, nil
		}
	}
	return nil, oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
}

func (m *memAccounts) FindByUsername(_ context.Context, username string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if strings.EqualFold(a.Username, username) {
			out := *a
			return &out, nil
		}
	}
	return nil, oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
}

func (m *memAccounts) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
	}
	a.PasswordHash = passwordHash
	return nil
}

func (m *memAccounts) IncrementFailedLogins(_ context.Context, id ulid.ULID, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return 0, oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
	}
	m.increments++
	if a.LockedUntil != nil && !a.LockedUntil.After(now) {
		a.FailedAttempts, a.LockedUntil = 0, nil
	}
	a.FailedAttempts++
	return a.FailedAttempts, nil
}

func (m *memAccounts) LockUntil(_ context.Context, id ulid.ULID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
	}
	a.LockedUntil = &until
	return nil
}

func (m *memAccounts) ClearFailedLogins(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return oops.Code(auth.CodeAccountNotFound).Wrap(auth.ErrAccountNotFound)
	}
	a.FailedAttempts, a.LockedUntil = 0, nil
	return nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *memAccounts) get(email string) *auth.Account {
	a, err := m.FindByEmail(context.Background(), email)
	if err != nil {
		return nil
	}
	return a
}

type memSessions struct {
	mu         sync.Mutex
	byHash     map[string]*auth.Session
	clock      func() time.Time
	persistErr error
	sweepErr   error
}

func newMemSessions(clock func() time.Time) *memSessions {
	return &memSessions{byHash: make(map[string]*auth.Session), clock: clock}
}

func (m *memSessions) Persist(_ context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persistErr != nil {
		return m.persistErr
	}
	m.byHash[s.TokenHash] = s
	return nil
}

func (m *memSessions) IsActive(_ context.Context, token string) (ulid.ULID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byHash[auth.HashToken(token)]
	if !ok {
		return ulid.ULID{}, oops.Code(auth.CodeTokenInvalid).Wrap(auth.ErrTokenInvalid)
	}
	if s.IsExpiredAt(m.clock()) {
		return ulid.ULID{}, oops.Code(auth.CodeTokenExpired).Wrap(auth.ErrTokenExpired)
	}
	return s.AccountID, nil
}

func (m *memSessions) Invalidate(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byHash, auth.HashToken(token))
	return nil
}

func (m *memSessions) InvalidateAll(_ context.Context, accountID ulid.ULID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for hash, s := range m.byHash {
		if s.AccountID == accountID {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteExpired(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	var n int64
	now := m.clock()
	for hash, s := range m.byHash {
		if s.IsExpiredAt(now) {
			delete(m.byHash, hash)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byHash)
}

type memChallenges struct {
	mu        sync.Mutex
	byAccount map[ulid.ULID]*auth.ResetChallenge
	accounts  *memAccounts
	sweepErr  error
	redeemErr error
}

func newMemChallenges() *memChallenges {
	return &memChallenges{byAccount: make(map[ulid.ULID]*auth.ResetChallenge)}
}

func (m *memChallenges) Upsert(_ context.Context, c *auth.ResetChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *c
	m.byAccount[c.AccountID] = &stored
	return nil
}

func (m *memChallenges) Get(_ context.Context, accountID ulid.ULID) (*auth.ResetChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byAccount[accountID]
	if !ok {
		return nil, auth.ErrChallengeNotFound
	}
	out := *c
	return &out, nil
}

func (m *memChallenges) IncrementAttempts(_ context.Context, accountID ulid.ULID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byAccount[accountID]
	if !ok {
		return 0, auth.ErrChallengeNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

func (m *memChallenges) Redeem(ctx context.Context, accountID ulid.ULID, codeHash string, now time.Time, passwordHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.redeemErr != nil {
		return false, m.redeemErr
	}
	c, ok := m.byAccount[accountID]
	if !ok || c.CodeHash != codeHash || c.IsExpiredAt(now) {
		return false, nil
	}
	if m.accounts != nil {
		if err := m.accounts.UpdatePassword(ctx, accountID, passwordHash); err != nil {
			return false, err
		}
	}
	delete(m.byAccount, accountID)
	return true, nil
}

func (m *memChallenges) Delete(_ context.Context, accountID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byAccount, accountID)
	return nil
}

func (m *memChallenges) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sweepErr != nil {
		return 0, m.sweepErr
	}
	var n int64
	for id, c := range m.byAccount {
		if c.IsExpiredAt(now) {
			delete(m.byAccount, id)
			n++
		}
	}
	return n, nil
}

func (m *memChallenges) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byAccount)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []auth.Message
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg auth.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) messages() []auth.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]auth.Message(nil), n.sent...)
}

// seqCodes hands out codes in order and repeats the last one.
type seqCodes struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (s *seqCodes) Generate(int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := s.codes[min(s.next, len(s.codes)-1)]
	s.next++
	return code, nil
}

type countingLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	err    error
}

func newCountingLimiter() *countingLimiter {
	return &countingLimiter{counts: make(map[string]int)}
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	l.counts[key]++
	return l.counts[key] <= limit, nil
}

func (l *countingLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, key)
	return nil
}

type recordedOp struct {
	operation string
	outcome   string
}

type recordingRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (r *recordingRecorder) RecordAuthOperation(operation, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{operation, outcome})
}

func (r *recordingRecorder) last() recordedOp {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return recordedOp{}
	}
	return r.ops[len(r.ops)-1]
}
