//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "interbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required when storage.driver=sqlite")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadUserState(ctx context.Context, userID int64) (UserState, error) {
	st := UserState{UserID: userID}
	if s == nil || s.db == nil {
		return st, ErrDisabled
	}
	var cred sql.NullString
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT credential, auto_claim_active FROM user_state WHERE user_id = ?`, userID,
	).Scan(&cred, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		s.log.Warn("user state unreadable; using empty default",
			logx.Int64("user_id", userID), logx.Err(err))
		return UserState{UserID: userID}, nil
	}
	st.Credential = cred.String
	st.AutoClaimActive = active != 0
	return st, nil
}

func (s *sqliteStore) SaveUserState(ctx context.Context, st UserState) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	active := 0
	if st.AutoClaimActive {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_state(user_id, credential, auto_claim_active) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET credential=excluded.credential, auto_claim_active=excluded.auto_claim_active`,
		st.UserID, nullStr(st.Credential), active,
	)
	return err
}

func (s *sqliteStore) MutateUserState(ctx context.Context, userID int64, fn func(*UserState)) (UserState, error) {
	if s == nil || s.db == nil {
		return UserState{UserID: userID}, ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UserState{UserID: userID}, err
	}
	defer func() { _ = tx.Rollback() }()

	st := UserState{UserID: userID}
	var cred sql.NullString
	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT credential, auto_claim_active FROM user_state WHERE user_id = ?`, userID,
	).Scan(&cred, &active)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return st, err
	}
	st.Credential = cred.String
	st.AutoClaimActive = active != 0

	fn(&st)
	st.UserID = userID

	active = 0
	if st.AutoClaimActive {
		active = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_state(user_id, credential, auto_claim_active) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET credential=excluded.credential, auto_claim_active=excluded.auto_claim_active`,
		userID, nullStr(st.Credential), active,
	); err != nil {
		return st, err
	}
	return st, tx.Commit()
}

func (s *sqliteStore) AppendClaim(ctx context.Context, userID int64, rec ClaimRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claim_history(user_id, at, success, message,
		   claimed_silver, claimed_gold, claimed_diamond,
		   total_silver_after, total_gold_after, total_diamond_after)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		userID, rec.Timestamp.UnixMilli(), success, rec.Message,
		rec.ClaimedSilver, rec.ClaimedGold, rec.ClaimedDiamond,
		rec.TotalSilverAfter, rec.TotalGoldAfter, rec.TotalDiamondAfter,
	)
	return err
}

func (s *sqliteStore) RecentClaims(ctx context.Context, userID int64, limit int) ([]ClaimRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, success, message,
		        claimed_silver, claimed_gold, claimed_diamond,
		        total_silver_after, total_gold_after, total_diamond_after
		 FROM claim_history WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClaimRecord
	for rows.Next() {
		var rec ClaimRecord
		var at int64
		var success int
		if err := rows.Scan(&at, &success, &rec.Message,
			&rec.ClaimedSilver, &rec.ClaimedGold, &rec.ClaimedDiamond,
			&rec.TotalSilverAfter, &rec.TotalGoldAfter, &rec.TotalDiamondAfter); err != nil {
			return nil, err
		}
		rec.Timestamp = time.UnixMilli(at)
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ActiveUsers(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_state WHERE auto_claim_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
