package autoclaim

import (
	"context"
	"math/rand"

	"interbot/internal/interlink"
	"interbot/internal/storage"
	"interbot/pkg/logx"
)

// ClaimOutcome is the result of one claim cycle, manual or scheduled.
type ClaimOutcome struct {
	Success bool
	Message string
	Outcome interlink.Outcome

	ClaimedSilver  int64
	ClaimedGold    int64
	ClaimedDiamond int64

	TotalSilverAfter  int64
	TotalGoldAfter    int64
	TotalDiamondAfter int64

	// BalancesKnown is false when the post-claim balance fetch failed; the
	// claimed and total fields are zero in that case.
	BalancesKnown bool
}

type claimDeps struct {
	log    logx.Logger
	client RewardsClient
	store  storage.Store
	clock  Clock
}

// runClaimCycle performs the full claim sequence for one user: snapshot
// balances, optionally pause for jitter, submit, snapshot again, compute
// clamped deltas and append a history record. Cancelling ctx before the
// submit aborts the cycle without touching the non-idempotent claim
// endpoint; once the submit goes out, the rest of the cycle runs detached
// from ctx so a submitted claim is always followed up and recorded. The
// history append is best-effort; a storage failure is logged but does not
// fail the claim.
func runClaimCycle(ctx context.Context, d claimDeps, userID int64, credential string, rng *rand.Rand, jitter bool) ClaimOutcome {
	var before *interlink.Balances
	if b, out := d.client.GetTokenBalances(ctx, credential); out.OK() {
		before = b
	} else {
		d.log.Warn("pre-claim balance fetch failed",
			logx.Int64("user_id", userID),
			logx.String("kind", out.Kind.String()),
			logx.String("message", out.Message))
	}

	if jitter && rng != nil {
		if err := d.clock.Sleep(ctx, claimJitter(rng)); err != nil {
			return cancelledClaim()
		}
	}
	if ctx.Err() != nil {
		return cancelledClaim()
	}

	post := context.Background()
	res, out := d.client.SubmitClaim(post, credential)

	oc := ClaimOutcome{Outcome: out, Message: out.Message}
	if out.OK() && res != nil && res.Done {
		oc.Success = true
		if oc.Message == "" {
			oc.Message = "claim successful"
		}
	} else if oc.Message == "" {
		oc.Message = "claim was not completed"
	}

	if after, aout := d.client.GetTokenBalances(post, credential); aout.OK() {
		oc.BalancesKnown = true
		oc.TotalSilverAfter = after.Silver
		oc.TotalGoldAfter = after.Gold
		oc.TotalDiamondAfter = after.Diamond
		if before != nil {
			oc.ClaimedSilver = clampDelta(after.Silver - before.Silver)
			oc.ClaimedGold = clampDelta(after.Gold - before.Gold)
			oc.ClaimedDiamond = clampDelta(after.Diamond - before.Diamond)
		}
	}

	rec := storage.ClaimRecord{
		Timestamp:         d.clock.Now(),
		Success:           oc.Success,
		Message:           oc.Message,
		ClaimedSilver:     oc.ClaimedSilver,
		ClaimedGold:       oc.ClaimedGold,
		ClaimedDiamond:    oc.ClaimedDiamond,
		TotalSilverAfter:  oc.TotalSilverAfter,
		TotalGoldAfter:    oc.TotalGoldAfter,
		TotalDiamondAfter: oc.TotalDiamondAfter,
	}
	if err := d.store.AppendClaim(post, userID, rec); err != nil {
		d.log.Error("claim history append failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	return oc
}

// cancelledClaim marks a cycle that was aborted before any submit went out.
func cancelledClaim() ClaimOutcome {
	return ClaimOutcome{
		Message: "cancelled before claim submission",
		Outcome: interlink.Outcome{Kind: interlink.KindTransient, Message: "cancelled before claim submission"},
	}
}

// clampDelta drops negative balance movements. Balances can shrink between
// the two snapshots for reasons unrelated to the claim.
func clampDelta(d int64) int64 {
	if d < 0 {
		return 0
	}
	return d
}
