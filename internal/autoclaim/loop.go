package autoclaim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"interbot/internal/interlink"
	"interbot/internal/storage"
	"interbot/pkg/logx"
)

type loopState int

const (
	stateChecking loopState = iota
	stateClaiming
	stateWaiting
	stateErrorBackoff
	stateStopped
)

func (s loopState) String() string {
	switch s {
	case stateChecking:
		return "checking"
	case stateClaiming:
		return "claiming"
	case stateWaiting:
		return "waiting"
	case stateErrorBackoff:
		return "error-backoff"
	case stateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

type deps struct {
	log    logx.Logger
	client RewardsClient
	store  storage.Store
	sink   NotificationSink
	clock  Clock
}

// loop is one user's scheduler. It owns no shared state besides the store;
// all fields are touched only from the loop goroutine.
type loop struct {
	userID int64
	d      deps
	log    logx.Logger
	rng    *rand.Rand

	state      loopState
	lastNotify time.Time
}

func newLoop(userID int64, d deps, seed int64) *loop {
	return &loop{
		userID: userID,
		d:      d,
		log:    d.log.With(logx.Int64("user_id", userID)),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// run drives the per-user state machine until the stored flag goes false, a
// fatal condition occurs or ctx is cancelled. The eligibility check and the
// post-submit half of a claim cycle run on a background context so the one
// in-flight request completes even during shutdown, bounded by the client's
// own timeout. Everything before a submit observes ctx: sleeps, the claim
// jitter included, are interrupted immediately and a cancelled cycle never
// reaches the claim endpoint.
func (l *loop) run(ctx context.Context) {
	l.log.Info("auto-claim loop started")
	defer func() {
		l.transition(stateStopped)
		l.log.Info("auto-claim loop stopped")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		l.transition(stateChecking)

		st, err := l.d.store.LoadUserState(ctx, l.userID)
		if err != nil {
			l.log.Error("user state load failed", logx.Err(err))
			if !l.sleep(ctx, BucketTransient.sleepFor(0, l.rng)) {
				return
			}
			continue
		}
		if !st.AutoClaimActive {
			// Deactivated externally. Exit quietly.
			return
		}
		if st.Credential == "" {
			l.fatal("Auto-claim stopped: no access token is stored. Set a token and start again.")
			return
		}

		wait, ok := l.iterate(ctx, st.Credential)
		if !ok {
			return
		}
		if !l.sleep(ctx, wait) {
			return
		}
	}
}

func (l *loop) transition(next loopState) {
	if next == l.state {
		return
	}
	l.log.Debug("state transition",
		logx.String("from", l.state.String()),
		logx.String("to", next.String()))
	l.state = next
}

// iterate runs one check (and possibly one claim cycle) and returns the wait
// before the next check. ok is false when the loop must terminate.
func (l *loop) iterate(ctx context.Context, credential string) (wait time.Duration, ok bool) {
	elig, out := l.d.client.CheckClaimable(context.Background(), credential)
	if ctx.Err() != nil {
		return 0, false
	}

	switch {
	case out.Kind == interlink.KindAuthInvalid:
		l.fatal("Auto-claim stopped: the stored access token was rejected by the server. Set a new token and start again.")
		return 0, false

	case out.Kind == interlink.KindRateLimited:
		l.transition(stateErrorBackoff)
		wait = BucketRateLimited.sleepFor(0, l.rng)
		l.notify(ctx, BucketRateLimited, fmt.Sprintf("The server is rate limiting requests. Backing off for about %s.", roundWait(wait)))
		l.log.Warn("rate limited", logx.Duration("backoff", wait))
		return wait, true

	case out.Kind == interlink.KindTransient:
		l.transition(stateErrorBackoff)
		wait = BucketTransient.sleepFor(0, l.rng)
		l.log.Warn("eligibility check failed", logx.String("message", out.Message), logx.Duration("backoff", wait))
		return wait, true

	case out.Kind == interlink.KindClaimTooEarly:
		// The server itself said the window has not opened. Schedule like
		// an ordinary not-claimable poll.
		return l.waitForFrame(ctx, elig), true

	case !out.OK():
		l.transition(stateErrorBackoff)
		wait = BucketUnknown.sleepFor(0, l.rng)
		l.notify(ctx, BucketUnknown, fmt.Sprintf("Could not read the claim status (%s). Retrying in about %s.", out.Message, roundWait(wait)))
		l.log.Warn("eligibility check returned unusable response",
			logx.String("kind", out.Kind.String()),
			logx.String("message", out.Message))
		return wait, true
	}

	if elig.Claimable {
		return l.claim(ctx, credential)
	}
	return l.waitForFrame(ctx, elig), true
}

// waitForFrame picks the wait bucket from the server's next-frame hint (nil
// eligibility means no hint), announces it and returns the wait.
func (l *loop) waitForFrame(ctx context.Context, elig *interlink.Eligibility) time.Duration {
	l.transition(stateWaiting)
	var remaining time.Duration
	var known bool
	if elig != nil {
		remaining, known = untilFrame(l.d.clock.Now(), elig.NextFrame)
	}
	b := waitBucket(remaining, known)
	wait := b.sleepFor(remaining, l.rng)
	l.notify(ctx, b, waitMessage(b, remaining, wait))
	l.log.Debug("not claimable yet",
		logx.String("bucket", b.String()),
		logx.Duration("remaining", remaining),
		logx.Duration("wait", wait))
	return wait
}

func (l *loop) claim(ctx context.Context, credential string) (time.Duration, bool) {
	l.transition(stateClaiming)
	l.notify(ctx, BucketCycleDone, "A claim is available. Submitting now.")

	oc := runClaimCycle(ctx, claimDeps{
		log:    l.log,
		client: l.d.client,
		store:  l.d.store,
		clock:  l.d.clock,
	}, l.userID, credential, l.rng, true)
	if ctx.Err() != nil {
		return 0, false
	}

	if oc.Outcome.Kind == interlink.KindAuthInvalid {
		l.fatal("Auto-claim stopped: the stored access token was rejected during a claim. Set a new token and start again.")
		return 0, false
	}

	l.transition(stateWaiting)
	wait := BucketCycleDone.sleepFor(0, l.rng)
	l.notify(ctx, BucketCycleDone, claimSummary(oc, wait))
	return wait, true
}

// fatal deactivates the user and sends the final notification. Both happen
// on a background context so an app shutdown racing a fatal condition does
// not lose the flag write.
func (l *loop) fatal(msg string) {
	if _, err := l.d.store.MutateUserState(context.Background(), l.userID, func(st *storage.UserState) {
		st.AutoClaimActive = false
	}); err != nil {
		l.log.Error("deactivate on fatal condition failed", logx.Err(err))
	}
	if err := l.d.sink.Send(context.Background(), l.userID, msg); err != nil {
		l.log.Warn("fatal notification not delivered", logx.Err(err))
	}
}

// notify sends text unless the bucket's suppression window since the last
// delivered notification has not elapsed yet.
func (l *loop) notify(ctx context.Context, b Bucket, text string) {
	if win := b.suppression(); win > 0 {
		if since := l.d.clock.Now().Sub(l.lastNotify); since < win {
			l.log.Debug("notification suppressed",
				logx.String("bucket", b.String()),
				logx.Duration("since_last", since))
			return
		}
	}
	if err := l.d.sink.Send(ctx, l.userID, text); err != nil {
		l.log.Warn("notification not delivered", logx.Err(err))
		return
	}
	l.lastNotify = l.d.clock.Now()
}

func (l *loop) sleep(ctx context.Context, d time.Duration) bool {
	return l.d.clock.Sleep(ctx, d) == nil
}

// untilFrame converts the server's next-frame unix-millisecond timestamp to
// a remaining duration. A zero or negative frame means the server did not
// say when the next claim opens.
func untilFrame(now time.Time, frameMillis int64) (time.Duration, bool) {
	if frameMillis <= 0 {
		return 0, false
	}
	return time.UnixMilli(frameMillis).Sub(now), true
}

func waitMessage(b Bucket, remaining, wait time.Duration) string {
	switch b {
	case BucketUnknown:
		return fmt.Sprintf("The server did not say when the next claim opens. Checking again in about %s.", roundWait(wait))
	case BucketShort:
		return fmt.Sprintf("Next claim opens in %s. Standing by to claim right after.", roundWait(remaining))
	default:
		return fmt.Sprintf("Next claim opens in about %s. Checking again in about %s.", roundWait(remaining), roundWait(wait))
	}
}

func claimSummary(oc ClaimOutcome, wait time.Duration) string {
	if !oc.Success {
		return fmt.Sprintf("Claim did not complete: %s. Next check in about %s.", oc.Message, roundWait(wait))
	}
	if !oc.BalancesKnown {
		return fmt.Sprintf("Claim successful. Balances could not be verified afterwards. Next check in about %s.", roundWait(wait))
	}
	return fmt.Sprintf(
		"Claim successful. Gained %d silver, %d gold, %d diamond. Totals: %d silver, %d gold, %d diamond. Next check in about %s.",
		oc.ClaimedSilver, oc.ClaimedGold, oc.ClaimedDiamond,
		oc.TotalSilverAfter, oc.TotalGoldAfter, oc.TotalDiamondAfter,
		roundWait(wait))
}

// roundWait renders a duration at a user-friendly precision.
func roundWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d >= time.Minute {
		return d.Round(time.Minute).String()
	}
	return d.Round(time.Second).String()
}
