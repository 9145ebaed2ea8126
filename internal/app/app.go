package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"interbot/internal/autoclaim"
	"interbot/internal/config"
	"interbot/internal/interlink"
	"interbot/internal/notify"
	"interbot/internal/observability/pprof"
	"interbot/internal/router"
	"interbot/internal/storage"
	kit "interbot/internal/transport"
	telegram "interbot/internal/transport/telegram"
	"interbot/pkg/logx"
)

const defaultTimezone = "Asia/Jakarta"

// App wires the config manager, logging, transport, storage, the remote
// client and the claim scheduler together and owns their lifecycle.
type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	store   storage.Store
	client  *interlink.Client
	sink    *notify.Sink
	svc     *autoclaim.Service
	routes  *router.Router
	audit   *auditJob
	prof    *pprof.Service

	updates chan kit.Update

	cancel  context.CancelFunc
	routing chan struct{} // closed when the router loop exits
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	storeCfg, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storeCfg, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	apiTimeout, err := config.ParseDurationOrDefault("interlink.timeout", cfg.Interlink.Timeout, 0)
	if err != nil {
		return nil, err
	}
	client := interlink.New(interlink.Config{
		BaseURL: cfg.Interlink.BaseURL,
		Timeout: apiTimeout,
	}, logSvc.Logger().With(logx.String("comp", "interlink")))

	sink := notify.New(notify.Config{
		RatePerSec: cfg.AutoClaim.NotifyRatePerSec,
		RetryMax:   2,
	}, adapter, logSvc.Logger().With(logx.String("comp", "notify")))

	svc := autoclaim.NewService(
		logSvc.Logger().With(logx.String("comp", "autoclaim")),
		client, store, sink, nil)

	tz, err := loadTimezone(cfg.AutoClaim.Timezone)
	if err != nil {
		return nil, err
	}
	routes := router.New(logSvc.Logger().With(logx.String("comp", "router")), svc, adapter, tz)

	audit, err := newAuditJob(cfg.AutoClaim.AuditSpec, svc, logSvc.Logger().With(logx.String("comp", "audit")))
	if err != nil {
		return nil, err
	}

	prof := pprof.New(pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}, logSvc.Logger().With(logx.String("comp", "pprof")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: adapter,
		store:   store,
		client:  client,
		sink:    sink,
		svc:     svc,
		routes:  routes,
		audit:   audit,
		prof:    prof,
		updates: make(chan kit.Update, 256),
		routing: make(chan struct{}),
	}, nil
}

// Start brings every component up. Loops for previously flagged users are
// resumed before the first command can arrive.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.logs.Logger().With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validate(cfg)
	})

	if err := a.svc.Run(runCtx); err != nil {
		a.log.Warn("auto-claim reconcile failed", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}

	go func() {
		defer close(a.routing)
		a.routes.Run(runCtx, a.updates)
	}()

	a.audit.Start()
	if a.prof.Enabled() {
		if err := a.prof.Start(); err != nil {
			a.log.Warn("pprof not started", logx.Err(err))
		}
	}

	go a.reloadLoop(runCtx)
	go func() {
		if err := a.cfgm.Watch(runCtx); err != nil {
			a.log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

// Stop shuts components down in dependency order, each step bounded by ctx.
// Persisted auto-claim flags are left intact so loops resume on restart.
func (a *App) Stop(ctx context.Context) {
	step := func(name string, fn func()) {
		done := make(chan struct{})
		go func() { defer close(done); fn() }()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn("shutdown step timed out", logx.String("step", name))
		}
	}

	a.audit.Stop()
	a.prof.Stop(ctx)
	step("autoclaim", func() { a.svc.Shutdown(ctx) })
	if a.cancel != nil {
		a.cancel()
	}
	step("router", func() { <-a.routing })
	step("telegram", func() {
		if err := a.adapter.Stop(ctx); err != nil {
			a.log.Warn("adapter stop failed", logx.Err(err))
		}
	})
	step("storage", func() {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	})
	a.log.Info("stopped")
	_ = a.logs.Close()
}

// reloadLoop applies hot-reloaded config. Only logging takes effect live;
// other sections require a restart and say so.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			if cfg.Logging != last.Logging {
				a.logs.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: cfg.Logging.File.Enabled,
						Path:    cfg.Logging.File.Path,
					},
				})
				a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
			}
			if cfg.Storage != last.Storage {
				a.log.Warn("storage config changed; restart required")
			}
			if cfg.Telegram != last.Telegram {
				a.log.Warn("telegram config changed; restart required")
			}
			if cfg.Interlink != last.Interlink {
				a.log.Warn("interlink config changed; restart required")
			}
			last = cfg
		}
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "data"
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        path,
		BusyTimeout: busy,
	}, nil
}

func loadTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultTimezone
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("autoclaim.timezone: invalid %q: %w", name, err)
	}
	return tz, nil
}

// validate rejects configs that would break a hot reload.
func validate(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("interlink.timeout", cfg.Interlink.Timeout, 0); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := loadTimezone(cfg.AutoClaim.Timezone); err != nil {
		return err
	}
	if cfg.AutoClaim.NotifyRatePerSec < 0 {
		return fmt.Errorf("autoclaim.notify_rate_per_sec must be >= 0")
	}
	return nil
}
