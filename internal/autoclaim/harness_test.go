package autoclaim

import (
	"context"
	"sync"
	"time"

	"interbot/internal/interlink"
	"interbot/internal/storage"
	"interbot/pkg/logx"
)

// memStore is an in-memory storage.Store for scheduler tests.
type memStore struct {
	mu      sync.Mutex
	states  map[int64]storage.UserState
	history map[int64][]storage.ClaimRecord
}

func newMemStore() *memStore {
	return &memStore{
		states:  map[int64]storage.UserState{},
		history: map[int64][]storage.ClaimRecord{},
	}
}

func (s *memStore) LoadUserState(_ context.Context, userID int64) (storage.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[userID]
	st.UserID = userID
	return st, nil
}

func (s *memStore) SaveUserState(_ context.Context, st storage.UserState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.UserID] = st
	return nil
}

func (s *memStore) MutateUserState(_ context.Context, userID int64, fn func(*storage.UserState)) (storage.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[userID]
	st.UserID = userID
	fn(&st)
	s.states[userID] = st
	return st, nil
}

func (s *memStore) AppendClaim(_ context.Context, userID int64, rec storage.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[userID] = append(s.history[userID], rec)
	return nil
}

func (s *memStore) RecentClaims(_ context.Context, userID int64, limit int) ([]storage.ClaimRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.history[userID]
	out := make([]storage.ClaimRecord, 0, limit)
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recs[i])
	}
	return out, nil
}

func (s *memStore) ActiveUsers(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, st := range s.states {
		if st.AutoClaimActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) claims(userID int64) []storage.ClaimRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.ClaimRecord(nil), s.history[userID]...)
}

// scriptedClient returns canned responses and counts calls.
type scriptedClient struct {
	mu sync.Mutex

	profile    *interlink.Profile
	profileOut interlink.Outcome

	balances    []*interlink.Balances // consumed in order, last repeats
	balancesOut interlink.Outcome

	eligibility    *interlink.Eligibility
	eligibilityOut interlink.Outcome

	claim    *interlink.ClaimResult
	claimOut interlink.Outcome

	checkCalls  int
	submitCalls int
}

func (c *scriptedClient) GetProfile(context.Context, string) (*interlink.Profile, interlink.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile, c.profileOut
}

func (c *scriptedClient) GetTokenBalances(context.Context, string) (*interlink.Balances, interlink.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.balances) == 0 {
		return nil, c.balancesOut
	}
	b := c.balances[0]
	if len(c.balances) > 1 {
		c.balances = c.balances[1:]
	}
	return b, c.balancesOut
}

func (c *scriptedClient) CheckClaimable(context.Context, string) (*interlink.Eligibility, interlink.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkCalls++
	return c.eligibility, c.eligibilityOut
}

func (c *scriptedClient) SubmitClaim(context.Context, string) (*interlink.ClaimResult, interlink.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitCalls++
	return c.claim, c.claimOut
}

func (c *scriptedClient) submits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCalls
}

// recordSink collects notifications.
type recordSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordSink) Send(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, text)
	return nil
}

func (s *recordSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

// fakeClock advances instantly on Sleep and records requested durations.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func okOutcome() interlink.Outcome { return interlink.Outcome{Kind: interlink.KindOK} }

func testLoop(userID int64, client RewardsClient, store storage.Store, sink NotificationSink, clock Clock) *loop {
	return newLoop(userID, deps{
		log:    logx.Nop(),
		client: client,
		store:  store,
		sink:   sink,
		clock:  clock,
	}, 1)
}
