package autoclaim

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"interbot/internal/interlink"
	"interbot/internal/storage"
	"interbot/pkg/logx"
)

func TestLoopStopsOnAuthInvalid(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.states[1] = storage.UserState{UserID: 1, Credential: "tok", AutoClaimActive: true}
	client := &scriptedClient{
		eligibilityOut: interlink.Outcome{Kind: interlink.KindAuthInvalid, Message: "Unauthorized", Status: 401},
	}
	sink := &recordSink{}
	l := testLoop(1, client, store, sink, newFakeClock())

	l.run(context.Background())

	st, _ := store.LoadUserState(context.Background(), 1)
	if st.AutoClaimActive {
		t.Fatalf("flag still active after auth failure")
	}
	msgs := sink.all()
	if len(msgs) != 1 {
		t.Fatalf("want exactly one notification, got %d: %v", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "token") {
		t.Fatalf("notification should mention the token: %q", msgs[0])
	}
	if client.submits() != 0 {
		t.Fatalf("no claim should be submitted on auth failure")
	}
}

func TestLoopExitsQuietlyWhenFlagCleared(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.states[1] = storage.UserState{UserID: 1, Credential: "tok", AutoClaimActive: false}
	client := &scriptedClient{}
	sink := &recordSink{}
	l := testLoop(1, client, store, sink, newFakeClock())

	l.run(context.Background())

	if n := len(sink.all()); n != 0 {
		t.Fatalf("want no notifications, got %d", n)
	}
	if client.checkCalls != 0 {
		t.Fatalf("flag-off loop should not hit the API")
	}
}

func TestIterateNotClaimableSkipsSubmit(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	remaining := 500 * time.Second
	client := &scriptedClient{
		eligibility:    &interlink.Eligibility{Claimable: false, NextFrame: clock.Now().Add(remaining).UnixMilli()},
		eligibilityOut: okOutcome(),
	}
	sink := &recordSink{}
	l := testLoop(1, client, newMemStore(), sink, clock)

	wait, ok := l.iterate(context.Background(), "tok")
	if !ok {
		t.Fatalf("iterate should keep the loop alive")
	}
	if client.submits() != 0 {
		t.Fatalf("claim submitted while not claimable")
	}
	// Short bucket: remaining plus 10..45s jitter.
	if wait < remaining+10*time.Second || wait > remaining+45*time.Second {
		t.Fatalf("short bucket wait out of range: %v", wait)
	}
	if l.state != stateWaiting {
		t.Fatalf("state = %v, want waiting", l.state)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("short bucket waits always notify")
	}
}

func TestIterateClaimTooEarlyWaitsInsteadOfBackoff(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	client := &scriptedClient{
		eligibility:    &interlink.Eligibility{Claimable: true},
		eligibilityOut: okOutcome(),
		balances:       []*interlink.Balances{{Silver: 100}},
		balancesOut:    okOutcome(),
		claimOut:       interlink.Outcome{Kind: interlink.KindClaimTooEarly, Message: "TOKEN_CLAIM_TOO_EARLY", Status: 400},
	}
	l := testLoop(1, client, store, &recordSink{}, newFakeClock())

	wait, ok := l.iterate(context.Background(), "tok")
	if !ok {
		t.Fatalf("too-early must not stop the loop")
	}
	if l.state != stateWaiting {
		t.Fatalf("state = %v, want waiting", l.state)
	}
	if wait < 5*time.Minute || wait > 10*time.Minute {
		t.Fatalf("post-cycle wait out of range: %v", wait)
	}
	recs := store.claims(1)
	if len(recs) != 1 {
		t.Fatalf("want one history record, got %d", len(recs))
	}
	if recs[0].Success {
		t.Fatalf("too-early attempt must be recorded as unsuccessful")
	}
}

func TestIterateClaimTooEarlyFromCheckWaits(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{
		eligibilityOut: interlink.Outcome{Kind: interlink.KindClaimTooEarly, Message: "TOKEN_CLAIM_TOO_EARLY", Status: 400},
	}
	sink := &recordSink{}
	l := testLoop(1, client, newMemStore(), sink, newFakeClock())

	wait, ok := l.iterate(context.Background(), "tok")
	if !ok {
		t.Fatalf("too-early check must not stop the loop")
	}
	if l.state != stateWaiting {
		t.Fatalf("state = %v, want waiting", l.state)
	}
	// No next-frame hint came with the error, so the unknown range applies.
	if wait < 5*time.Minute || wait > 10*time.Minute {
		t.Fatalf("wait out of range: %v", wait)
	}
	if client.submits() != 0 {
		t.Fatalf("claim submitted on a too-early check")
	}
}

func TestIterateRateLimitedBacksOffHard(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{
		eligibilityOut: interlink.Outcome{Kind: interlink.KindRateLimited, Status: 429},
	}
	sink := &recordSink{}
	l := testLoop(1, client, newMemStore(), sink, newFakeClock())

	wait, ok := l.iterate(context.Background(), "tok")
	if !ok {
		t.Fatalf("rate limit must not stop the loop")
	}
	if wait < 45*time.Minute || wait > 75*time.Minute {
		t.Fatalf("rate-limit backoff out of range: %v", wait)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("rate-limit backoff should be announced once")
	}
}

func TestIterateTransientIsQuiet(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{
		eligibilityOut: interlink.Outcome{Kind: interlink.KindTransient, Message: "connection refused"},
	}
	sink := &recordSink{}
	l := testLoop(1, client, newMemStore(), sink, newFakeClock())

	wait, ok := l.iterate(context.Background(), "tok")
	if !ok {
		t.Fatalf("transient failure must not stop the loop")
	}
	if wait < 2*time.Minute || wait > 5*time.Minute {
		t.Fatalf("transient backoff out of range: %v", wait)
	}
	if len(sink.all()) != 0 {
		t.Fatalf("transient failures are log-only")
	}
}

func TestNotifySuppressionWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	sink := &recordSink{}
	l := testLoop(1, &scriptedClient{}, newMemStore(), sink, clock)

	ctx := context.Background()
	l.notify(ctx, BucketLong, "first")
	l.notify(ctx, BucketLong, "suppressed")
	if got := len(sink.all()); got != 1 {
		t.Fatalf("second long-bucket notification within the window must be suppressed, got %d", got)
	}

	clock.mu.Lock()
	clock.now = clock.now.Add(2*time.Hour + time.Minute)
	clock.mu.Unlock()
	l.notify(ctx, BucketLong, "after window")
	if got := len(sink.all()); got != 2 {
		t.Fatalf("notification after the window must be delivered, got %d", got)
	}

	l.notify(ctx, BucketShort, "always")
	if got := len(sink.all()); got != 3 {
		t.Fatalf("short bucket never suppresses, got %d", got)
	}
}

func TestRunClaimCycleAbortsBeforeSubmitOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, jitter := range []bool{true, false} {
		store := newMemStore()
		client := &scriptedClient{
			balances:    []*interlink.Balances{{Silver: 100}},
			balancesOut: okOutcome(),
			claim:       &interlink.ClaimResult{Done: true},
			claimOut:    okOutcome(),
		}

		oc := runClaimCycle(ctx, claimDeps{
			log:    logx.Nop(),
			client: client,
			store:  store,
			clock:  newFakeClock(),
		}, 1, "tok", rand.New(rand.NewSource(1)), jitter)

		if oc.Success {
			t.Fatalf("jitter=%v: cancelled cycle must not report success", jitter)
		}
		if client.submits() != 0 {
			t.Fatalf("jitter=%v: claim submitted despite cancelled context", jitter)
		}
		if len(store.claims(1)) != 0 {
			t.Fatalf("jitter=%v: aborted cycle must not append history", jitter)
		}
	}
}

func TestClaimSkipsSubmitWhenCancelled(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{balancesOut: okOutcome()}
	l := testLoop(1, client, newMemStore(), &recordSink{}, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := l.claim(ctx, "tok"); ok {
		t.Fatalf("claim under a cancelled context must stop the loop")
	}
	if client.submits() != 0 {
		t.Fatalf("claim submitted %d time(s) despite cancelled context", client.submits())
	}
}

func TestRunClaimCycleClampsNegativeDeltas(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	clock := newFakeClock()
	client := &scriptedClient{
		balances: []*interlink.Balances{
			{Silver: 100, Gold: 10, Diamond: 1},
			{Silver: 90, Gold: 15, Diamond: 1},
		},
		balancesOut: okOutcome(),
		claim:       &interlink.ClaimResult{Done: true},
		claimOut:    okOutcome(),
	}

	oc := runClaimCycle(context.Background(), claimDeps{
		log:    logx.Nop(),
		client: client,
		store:  store,
		clock:  clock,
	}, 1, "tok", nil, false)

	if !oc.Success {
		t.Fatalf("claim should succeed: %+v", oc)
	}
	if oc.ClaimedSilver != 0 {
		t.Fatalf("negative silver delta must clamp to zero, got %d", oc.ClaimedSilver)
	}
	if oc.ClaimedGold != 5 {
		t.Fatalf("gold delta = %d, want 5", oc.ClaimedGold)
	}
	if oc.TotalSilverAfter != 90 || oc.TotalGoldAfter != 15 || oc.TotalDiamondAfter != 1 {
		t.Fatalf("totals wrong: %+v", oc)
	}

	recs := store.claims(1)
	if len(recs) != 1 {
		t.Fatalf("want one history record, got %d", len(recs))
	}
	if recs[0].ClaimedSilver != 0 || recs[0].ClaimedGold != 5 {
		t.Fatalf("history record deltas wrong: %+v", recs[0])
	}
	if !recs[0].Timestamp.Equal(clock.Now()) {
		t.Fatalf("history timestamp should come from the clock")
	}
}
