package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Interlink InterlinkConfig `json:"interlink"`
	Storage   StorageConfig   `json:"storage"`
	AutoClaim AutoClaimConfig `json:"autoclaim"`
	Pprof     PprofConfig     `json:"pprof"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// InterlinkConfig points the remote claim client at the rewards API.
type InterlinkConfig struct {
	BaseURL string `json:"base_url,omitempty"` // default: production API

	// Timeout is a Go duration string bounding each remote call (default "20s").
	Timeout string `json:"timeout,omitempty"`
}

// StorageConfig selects the per-user persistence backend.
//
// Driver values:
//   - "file": one JSON document per user (default)
//   - "sqlite": single SQLite database file (requires the sqlite build tag)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AutoClaimConfig tunes the claim scheduler subsystem.
//
// All durations are Go duration strings.
type AutoClaimConfig struct {
	// NotifyRatePerSec caps outgoing user notifications across all loops.
	NotifyRatePerSec int `json:"notify_rate_per_sec,omitempty"` // default 3

	// AuditSpec is a cron spec for the periodic flag/handle desync audit.
	// Empty disables the audit. Example: "@hourly".
	AuditSpec string `json:"audit_spec,omitempty"`

	// Timezone is used for user-facing timestamp rendering (default "Asia/Jakarta").
	Timezone string `json:"timezone,omitempty"`
}

// PprofConfig controls the optional profiling HTTP listener. Non-loopback
// binds require a token.
type PprofConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:6060"
	Token   string `json:"token,omitempty"`
}
