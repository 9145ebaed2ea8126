package autoclaim

import (
	"context"
	"errors"

	"interbot/internal/interlink"
)

// Status describes the agreement between the persisted auto-claim flag and
// the in-memory loop for one user.
type Status int

const (
	// StatusInactive: flag off and no loop running.
	StatusInactive Status = iota
	// StatusActive: flag on and a loop is running.
	StatusActive
	// StatusDesynced: flag and loop disagree. Reported, never repaired here.
	StatusDesynced
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "inactive"
	case StatusActive:
		return "active"
	case StatusDesynced:
		return "desynced"
	default:
		return "invalid"
	}
}

var (
	// ErrNoCredential is returned when a loop is started for a user that has
	// no stored credential.
	ErrNoCredential = errors.New("autoclaim: no credential stored")
	// ErrNotRunning is returned when stopping a user with no running loop.
	ErrNotRunning = errors.New("autoclaim: loop not running")
)

// RewardsClient is the remote surface the scheduler needs. Satisfied by
// *interlink.Client.
type RewardsClient interface {
	GetProfile(ctx context.Context, credential string) (*interlink.Profile, interlink.Outcome)
	GetTokenBalances(ctx context.Context, credential string) (*interlink.Balances, interlink.Outcome)
	CheckClaimable(ctx context.Context, credential string) (*interlink.Eligibility, interlink.Outcome)
	SubmitClaim(ctx context.Context, credential string) (*interlink.ClaimResult, interlink.Outcome)
}

// NotificationSink delivers user-facing messages. Delivery failures are the
// sink's problem; the scheduler never blocks on them beyond the call itself.
type NotificationSink interface {
	Send(ctx context.Context, userID int64, text string) error
}
