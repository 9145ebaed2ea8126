package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per user under Path (default)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// UserState is the persisted per-user record. Created on first credential
// submission, overwritten in place, never deleted.
type UserState struct {
	UserID          int64  `json:"user_id"`
	Credential      string `json:"credential,omitempty"`
	AutoClaimActive bool   `json:"auto_claim_active"`
}

// ClaimRecord is one claim attempt. Immutable once appended.
type ClaimRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`

	ClaimedSilver  int64 `json:"claimed_silver"`
	ClaimedGold    int64 `json:"claimed_gold"`
	ClaimedDiamond int64 `json:"claimed_diamond"`

	TotalSilverAfter  int64 `json:"total_silver_after"`
	TotalGoldAfter    int64 `json:"total_gold_after"`
	TotalDiamondAfter int64 `json:"total_diamond_after"`
}
