package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interbot/internal/autoclaim"
	"interbot/internal/storage"
	"interbot/pkg/tgui"
)

func (r *Router) renderProfile(ctx context.Context, userID int64) tgui.H {
	p, err := r.svc.Profile(ctx, userID)
	if err != nil {
		return r.renderErr(err)
	}
	return tgui.Lines(
		tgui.B("Account"),
		tgui.Esc("Username: "+p.Username),
		tgui.Esc("Email: "+p.Email),
		tgui.Esc("Role: "+p.Role),
		tgui.Esc("Login ID: "+p.LoginID),
		tgui.Esc("Created: "+p.CreatedAt))
}

func (r *Router) renderBalances(ctx context.Context, userID int64) tgui.H {
	b, err := r.svc.Balances(ctx, userID)
	if err != nil {
		return r.renderErr(err)
	}
	last := "never"
	if b.LastClaimTime > 0 {
		last = r.stamp(time.UnixMilli(b.LastClaimTime))
	}
	lines := []tgui.H{
		tgui.B("Token balances"),
		tgui.Esc(fmt.Sprintf("Silver: %d", b.Silver)),
		tgui.Esc(fmt.Sprintf("Gold: %d", b.Gold)),
		tgui.Esc(fmt.Sprintf("Diamond: %d", b.Diamond)),
		tgui.Esc("Last claim: " + last),
	}
	if b.FirstLoginClaim {
		lines = append(lines, tgui.Esc("First-login claim still pending."))
	}
	return tgui.Lines(lines...)
}

func (r *Router) renderEligibility(ctx context.Context, userID int64) tgui.H {
	e, err := r.svc.Eligibility(ctx, userID)
	if err != nil {
		return r.renderErr(err)
	}
	if e.Claimable {
		return tgui.Lines(
			tgui.B("A claim is open now."),
			tgui.Esc("Use /claim to claim it, or start auto-claim."))
	}
	if e.NextFrame <= 0 {
		return tgui.Esc("Not claimable yet. The server did not say when the next window opens.")
	}
	at := time.UnixMilli(e.NextFrame)
	remaining := time.Until(at)
	if remaining < 0 {
		remaining = 0
	}
	return tgui.Lines(
		tgui.B("Not claimable yet."),
		tgui.Esc("Next window: "+r.stamp(at)),
		tgui.Esc("Opens in: "+remaining.Round(time.Second).String()))
}

func (r *Router) runManualClaim(ctx context.Context, userID int64) tgui.H {
	oc, err := r.svc.ManualClaim(ctx, userID)
	if err != nil {
		return r.renderErr(err)
	}
	if !oc.Success {
		return tgui.Lines(
			tgui.B("Claim did not complete."),
			tgui.Esc(oc.Message))
	}
	if !oc.BalancesKnown {
		return tgui.B("Claim successful. Balances could not be verified afterwards.")
	}
	return tgui.Lines(
		tgui.B("Claim successful."),
		tgui.Esc(fmt.Sprintf("Gained: %d silver, %d gold, %d diamond", oc.ClaimedSilver, oc.ClaimedGold, oc.ClaimedDiamond)),
		tgui.Esc(fmt.Sprintf("Totals: %d silver, %d gold, %d diamond", oc.TotalSilverAfter, oc.TotalGoldAfter, oc.TotalDiamondAfter)))
}

func (r *Router) renderHistory(ctx context.Context, userID int64) tgui.H {
	recs, err := r.svc.History(ctx, userID)
	if err != nil {
		return r.renderErr(err)
	}
	if len(recs) == 0 {
		return tgui.Esc("No claims recorded yet.")
	}
	lines := []tgui.H{tgui.Bf("Last %d claims", len(recs))}
	for _, rec := range recs {
		lines = append(lines, r.historyLine(rec))
	}
	return tgui.Lines(lines...)
}

func (r *Router) historyLine(rec storage.ClaimRecord) tgui.H {
	mark := "x"
	if rec.Success {
		mark = "ok"
	}
	line := fmt.Sprintf("[%s] %s", mark, r.stamp(rec.Timestamp))
	if rec.Success {
		line += fmt.Sprintf(" +%d/+%d/+%d", rec.ClaimedSilver, rec.ClaimedGold, rec.ClaimedDiamond)
	} else if rec.Message != "" {
		line += " " + rec.Message
	}
	return tgui.Esc(line)
}

func (r *Router) startAutoClaim(userID int64) tgui.H {
	if err := r.svc.StartAutoClaim(userID); err != nil {
		return r.renderErr(err)
	}
	return tgui.Lines(
		tgui.B("Auto-claim started."),
		tgui.Esc("You will be notified when claims happen. Use /autoclaim_stop to stop."))
}

func (r *Router) stopAutoClaim(ctx context.Context, userID int64) tgui.H {
	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.svc.StopAutoClaim(stopCtx, userID); err != nil {
		if errors.Is(err, autoclaim.ErrNotRunning) {
			return tgui.Esc("Auto-claim was not running.")
		}
		return r.renderErr(err)
	}
	return tgui.B("Auto-claim stopped.")
}

func (r *Router) renderStatus(ctx context.Context, userID int64) tgui.H {
	st, err := r.svc.AutoClaimStatus(ctx, userID)
	if err != nil {
		return r.renderErr(err)
	}
	switch st {
	case autoclaim.StatusActive:
		return tgui.B("Auto-claim is active.")
	case autoclaim.StatusInactive:
		return tgui.B("Auto-claim is inactive.")
	default:
		return tgui.Lines(
			tgui.B("Auto-claim is desynced."),
			tgui.Esc("The stored flag and the running scheduler disagree. Use /autoclaim_stop then /autoclaim_start to reset."))
	}
}

func (r *Router) renderErr(err error) tgui.H {
	if errors.Is(err, autoclaim.ErrNoCredential) {
		return tgui.Esc("No access token stored. Set one with /settoken <token>.")
	}
	return tgui.Lines(tgui.B("Request failed."), tgui.Esc(err.Error()))
}

// stamp renders a timestamp in the configured display timezone.
func (r *Router) stamp(t time.Time) string {
	return t.In(r.tz).Format("2006-01-02 15:04:05 MST")
}
