package storage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"interbot/pkg/logx"
)

func newFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestLoadMissingUserReturnsDefault(t *testing.T) {
	t.Parallel()

	st := newFileStore(t)
	got, err := st.LoadUserState(context.Background(), 42)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.UserID != 42 || got.Credential != "" || got.AutoClaimActive {
		t.Fatalf("want empty default, got %+v", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	st := newFileStore(t)
	ctx := context.Background()
	in := UserState{UserID: 7, Credential: "tok", AutoClaimActive: true}
	if err := st.SaveUserState(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.LoadUserState(ctx, 7)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != in {
		t.Fatalf("round trip mismatch: %+v != %+v", got, in)
	}
}

func TestCorruptStateFallsBackToDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	path := filepath.Join(dir, "state", strconv.Itoa(9)+".json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := st.LoadUserState(context.Background(), 9)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Credential != "" || got.AutoClaimActive {
		t.Fatalf("corrupt file must yield empty default, got %+v", got)
	}
}

func TestMutateUserStateIsReadModifyWrite(t *testing.T) {
	t.Parallel()

	st := newFileStore(t)
	ctx := context.Background()
	if err := st.SaveUserState(ctx, UserState{UserID: 3, Credential: "tok"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.MutateUserState(ctx, 3, func(s *UserState) {
		s.AutoClaimActive = true
	})
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if got.Credential != "tok" || !got.AutoClaimActive {
		t.Fatalf("mutate must preserve other fields: %+v", got)
	}
}

func TestRecentClaimsOrderAndLimit(t *testing.T) {
	t.Parallel()

	st := newFileStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		rec := ClaimRecord{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Success:   true,
			Message:   "claim " + strconv.Itoa(i),
		}
		if err := st.AppendClaim(ctx, 5, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	recs, err := st.RecentClaims(ctx, 5, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 10 {
		t.Fatalf("len = %d, want 10", len(recs))
	}
	if recs[0].Message != "claim 14" {
		t.Fatalf("newest first expected, got %q", recs[0].Message)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Timestamp.After(recs[i-1].Timestamp) {
			t.Fatalf("records not in descending time order at %d", i)
		}
	}
}

func TestRecentClaimsEmptyHistory(t *testing.T) {
	t.Parallel()

	st := newFileStore(t)
	recs, err := st.RecentClaims(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("want empty, got %d", len(recs))
	}
}

func TestActiveUsersFiltersByFlag(t *testing.T) {
	t.Parallel()

	st := newFileStore(t)
	ctx := context.Background()
	if err := st.SaveUserState(ctx, UserState{UserID: 1, Credential: "a", AutoClaimActive: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.SaveUserState(ctx, UserState{UserID: 2, Credential: "b"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	ids, err := st.ActiveUsers(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("active users = %v, want [1]", ids)
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "postgres", Path: t.TempDir()}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver must be rejected")
	}
}
