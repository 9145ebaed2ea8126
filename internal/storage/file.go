package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	logx "interbot/pkg/logx"
)

// fileStore keeps one JSON document per user:
//
//	<root>/state/<user_id>.json     current UserState
//	<root>/history/<user_id>.json   full claim history (JSON array)
//
// Writes go through a temp file + rename so a crash never leaves a torn
// document. Locks are per user; different users never contend.
type fileStore struct {
	log  logx.Logger
	root string

	lmu   sync.Mutex
	locks map[int64]*sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	for _, sub := range []string{"state", "history"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &fileStore{
		log:   log,
		root:  root,
		locks: map[int64]*sync.Mutex{},
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) userLock(userID int64) *sync.Mutex {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	mu := s.locks[userID]
	if mu == nil {
		mu = &sync.Mutex{}
		s.locks[userID] = mu
	}
	return mu
}

func (s *fileStore) statePath(userID int64) string {
	return filepath.Join(s.root, "state", strconv.FormatInt(userID, 10)+".json")
}

func (s *fileStore) historyPath(userID int64) string {
	return filepath.Join(s.root, "history", strconv.FormatInt(userID, 10)+".json")
}

func (s *fileStore) LoadUserState(ctx context.Context, userID int64) (UserState, error) {
	_ = ctx
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()
	return s.loadStateLocked(userID), nil
}

func (s *fileStore) loadStateLocked(userID int64) UserState {
	st := UserState{UserID: userID}
	b, err := os.ReadFile(s.statePath(userID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("user state unreadable; using empty default",
				logx.Int64("user_id", userID), logx.Err(err))
		}
		return st
	}
	if err := json.Unmarshal(b, &st); err != nil {
		s.log.Warn("user state corrupt; using empty default",
			logx.Int64("user_id", userID), logx.Err(err))
		return UserState{UserID: userID}
	}
	st.UserID = userID
	return st
}

func (s *fileStore) SaveUserState(ctx context.Context, st UserState) error {
	_ = ctx
	mu := s.userLock(st.UserID)
	mu.Lock()
	defer mu.Unlock()
	return s.saveStateLocked(st)
}

func (s *fileStore) saveStateLocked(st UserState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.statePath(st.UserID), b)
}

func (s *fileStore) MutateUserState(ctx context.Context, userID int64, fn func(*UserState)) (UserState, error) {
	_ = ctx
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	st := s.loadStateLocked(userID)
	fn(&st)
	st.UserID = userID
	if err := s.saveStateLocked(st); err != nil {
		return st, err
	}
	return st, nil
}

func (s *fileStore) AppendClaim(ctx context.Context, userID int64, rec ClaimRecord) error {
	_ = ctx
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	hist := s.loadHistoryLocked(userID)
	hist = append(hist, rec)
	b, err := json.MarshalIndent(hist, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.historyPath(userID), b)
}

func (s *fileStore) loadHistoryLocked(userID int64) []ClaimRecord {
	b, err := os.ReadFile(s.historyPath(userID))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("claim history unreadable; starting empty",
				logx.Int64("user_id", userID), logx.Err(err))
		}
		return nil
	}
	var hist []ClaimRecord
	if err := json.Unmarshal(b, &hist); err != nil {
		s.log.Warn("claim history corrupt; starting empty",
			logx.Int64("user_id", userID), logx.Err(err))
		return nil
	}
	return hist
}

func (s *fileStore) RecentClaims(ctx context.Context, userID int64, limit int) ([]ClaimRecord, error) {
	_ = ctx
	if limit <= 0 {
		return nil, nil
	}
	mu := s.userLock(userID)
	mu.Lock()
	hist := s.loadHistoryLocked(userID)
	mu.Unlock()

	if len(hist) == 0 {
		return nil, nil
	}
	n := limit
	if n > len(hist) {
		n = len(hist)
	}
	// Stored oldest-first; return most-recent-first.
	out := make([]ClaimRecord, 0, n)
	for i := len(hist) - 1; i >= len(hist)-n; i-- {
		out = append(out, hist[i])
	}
	return out, nil
}

func (s *fileStore) ActiveUsers(ctx context.Context) ([]int64, error) {
	_ = ctx
	entries, err := os.ReadDir(filepath.Join(s.root, "state"))
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(e.Name(), ".json"), 10, 64)
		if err != nil {
			continue
		}
		st, _ := s.LoadUserState(ctx, id)
		if st.AutoClaimActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
