package autoclaim

import (
	"context"
	"errors"
	"strings"

	"interbot/internal/interlink"
	"interbot/internal/storage"
	"interbot/pkg/logx"
)

var (
	// ErrEmptyCredential is returned when SetCredential is called with a
	// blank token.
	ErrEmptyCredential = errors.New("autoclaim: empty credential")
	// ErrMalformedCredential is returned when the token does not look like a
	// JWT. The API issues JWTs, so anything else is a paste mistake.
	ErrMalformedCredential = errors.New("autoclaim: credential does not look like an access token")
)

// HistoryLimit is the number of claim records shown to the user.
const HistoryLimit = 10

// Service is the command-facing surface over the registry, the remote client
// and the store. One instance serves all users.
type Service struct {
	log    logx.Logger
	client RewardsClient
	store  storage.Store
	clock  Clock
	reg    *Registry

	// appCtx bounds the lifetime of every loop the service starts. Set once
	// in Run before any command can arrive.
	appCtx context.Context
}

func NewService(log logx.Logger, client RewardsClient, store storage.Store, sink NotificationSink, clock Clock) *Service {
	if clock == nil {
		clock = NewClock()
	}
	return &Service{
		log:    log,
		client: client,
		store:  store,
		clock:  clock,
		reg:    NewRegistry(log, client, store, sink, clock),
	}
}

// Run resumes loops for all flagged users and holds the context loops are
// bound to. It returns immediately; loops run until Shutdown.
func (s *Service) Run(ctx context.Context) error {
	s.appCtx = ctx
	_, err := s.reg.Reconcile(ctx)
	return err
}

// Shutdown cancels all loops and waits for them within ctx. Persisted flags
// are left untouched so the same users resume after a restart.
func (s *Service) Shutdown(ctx context.Context) {
	s.reg.StopAll(ctx)
}

// SetCredential verifies the token against the profile endpoint before
// storing it. The returned profile lets the caller greet the user by name.
func (s *Service) SetCredential(ctx context.Context, userID int64, token string) (*interlink.Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyCredential
	}
	if !strings.HasPrefix(token, "ey") {
		return nil, ErrMalformedCredential
	}

	profile, out := s.client.GetProfile(ctx, token)
	if !out.OK() {
		return nil, credentialError(out)
	}

	if _, err := s.store.MutateUserState(ctx, userID, func(st *storage.UserState) {
		st.UserID = userID
		st.Credential = token
	}); err != nil {
		return nil, err
	}
	s.log.Info("credential updated", logx.Int64("user_id", userID))
	return profile, nil
}

// Profile fetches the account profile with the stored credential.
func (s *Service) Profile(ctx context.Context, userID int64) (*interlink.Profile, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	p, out := s.client.GetProfile(ctx, cred)
	if !out.OK() {
		return nil, credentialError(out)
	}
	return p, nil
}

// Balances fetches current token balances with the stored credential.
func (s *Service) Balances(ctx context.Context, userID int64) (*interlink.Balances, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, out := s.client.GetTokenBalances(ctx, cred)
	if !out.OK() {
		return nil, credentialError(out)
	}
	return b, nil
}

// Eligibility reports whether a claim is currently open.
func (s *Service) Eligibility(ctx context.Context, userID int64) (*interlink.Eligibility, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return nil, err
	}
	e, out := s.client.CheckClaimable(ctx, cred)
	if !out.OK() {
		return nil, credentialError(out)
	}
	return e, nil
}

// ManualClaim runs one claim cycle immediately, outside any loop. It shares
// the loop's cycle: balances before and after, clamped deltas, history
// append. No pre-claim jitter; the user asked for it now.
func (s *Service) ManualClaim(ctx context.Context, userID int64) (ClaimOutcome, error) {
	cred, err := s.credential(ctx, userID)
	if err != nil {
		return ClaimOutcome{}, err
	}
	oc := runClaimCycle(ctx, claimDeps{
		log:    s.log,
		client: s.client,
		store:  s.store,
		clock:  s.clock,
	}, userID, cred, nil, false)
	return oc, nil
}

// StartAutoClaim flags the user and launches their loop.
func (s *Service) StartAutoClaim(userID int64) error {
	return s.reg.Start(s.appCtx, userID)
}

// StopAutoClaim clears the flag and stops the loop, bounded by ctx.
func (s *Service) StopAutoClaim(ctx context.Context, userID int64) error {
	return s.reg.Stop(ctx, userID)
}

// AutoClaimStatus reports active, inactive or desynced for the user.
func (s *Service) AutoClaimStatus(ctx context.Context, userID int64) (Status, error) {
	return s.reg.Status(ctx, userID)
}

// History returns the most recent claim records, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]storage.ClaimRecord, error) {
	return s.store.RecentClaims(ctx, userID, HistoryLimit)
}

// AuditDesync returns the users whose flag and loop currently disagree.
// Report-only; nothing is repaired.
func (s *Service) AuditDesync(ctx context.Context) ([]int64, error) {
	flagged, err := s.store.ActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{}, len(flagged))
	ids := flagged
	for _, id := range flagged {
		seen[id] = struct{}{}
	}
	for _, id := range s.reg.RunningUsers() {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	var desynced []int64
	for _, id := range ids {
		st, err := s.reg.Status(ctx, id)
		if err != nil {
			s.log.Warn("audit status check failed", logx.Int64("user_id", id), logx.Err(err))
			continue
		}
		if st == StatusDesynced {
			desynced = append(desynced, id)
		}
	}
	return desynced, nil
}

func (s *Service) credential(ctx context.Context, userID int64) (string, error) {
	st, err := s.store.LoadUserState(ctx, userID)
	if err != nil {
		return "", err
	}
	if st.Credential == "" {
		return "", ErrNoCredential
	}
	return st.Credential, nil
}

// credentialError turns a non-OK outcome into an error for the synchronous
// command paths, where the caller renders it directly to the user.
func credentialError(out interlink.Outcome) error {
	if out.Message != "" {
		return errors.New(out.Message)
	}
	return errors.New("request failed (" + out.Kind.String() + ")")
}
