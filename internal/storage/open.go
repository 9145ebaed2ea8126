package storage

import (
	"context"
	"errors"
	"strings"

	logx "interbot/pkg/logx"
)

// Store is the per-user persistence API used by the auto-claim subsystem.
//
// All operations serialize per user: a manual claim and the background loop's
// read-modify-write on the same user never interleave destructively. Loads of
// missing or corrupt records degrade to the zero value (logged), never fail.
type Store interface {
	// LoadUserState returns the user's record, or a zero-value record when the
	// user has never been seen or the stored document is unreadable.
	LoadUserState(ctx context.Context, userID int64) (UserState, error)
	SaveUserState(ctx context.Context, st UserState) error

	// MutateUserState runs fn under the user's lock on the freshly loaded
	// record and persists the result. Use this for read-modify-write so a
	// concurrent writer can't be lost between a Load and a Save.
	MutateUserState(ctx context.Context, userID int64, fn func(*UserState)) (UserState, error)

	// AppendClaim appends one record to the user's history. History is
	// unbounded and append-only.
	AppendClaim(ctx context.Context, userID int64, rec ClaimRecord) error

	// RecentClaims returns up to limit records, most recent first.
	RecentClaims(ctx context.Context, userID int64, limit int) ([]ClaimRecord, error)

	// ActiveUsers enumerates user IDs whose auto_claim_active flag is set.
	// Used by boot-time reconciliation and the desync audit.
	ActiveUsers(ctx context.Context) ([]int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
