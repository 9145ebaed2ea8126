package autoclaim

import (
	"context"
	"sync"
	"time"

	"interbot/internal/storage"
	"interbot/pkg/logx"
)

// Registry owns the per-user scheduler goroutines. The map is the single
// source of truth for "is a loop running"; the persisted flag is the source
// of truth for "should a loop be running". Status compares the two and
// reports disagreement without repairing it.
type Registry struct {
	d    deps
	seed func() int64

	mu    sync.Mutex
	tasks map[int64]*task
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRegistry(log logx.Logger, client RewardsClient, store storage.Store, sink NotificationSink, clock Clock) *Registry {
	if clock == nil {
		clock = NewClock()
	}
	return &Registry{
		d: deps{
			log:    log,
			client: client,
			store:  store,
			sink:   sink,
			clock:  clock,
		},
		seed:  func() int64 { return time.Now().UnixNano() },
		tasks: make(map[int64]*task),
	}
}

// Start sets the persisted flag and launches the user's loop. Starting an
// already running user is a no-op. The loop's lifetime is bound to ctx, so
// callers pass the application context, not a request context.
func (r *Registry) Start(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[userID]; ok {
		select {
		case <-t.done:
			// Finished but not yet deregistered, replace below.
		default:
			return nil
		}
	}

	// State records are created when a credential is stored, not here; a
	// failed start for an unknown user must leave no trace.
	cur, err := r.d.store.LoadUserState(ctx, userID)
	if err != nil {
		return err
	}
	if cur.Credential == "" {
		return ErrNoCredential
	}

	st, err := r.d.store.MutateUserState(ctx, userID, func(st *storage.UserState) {
		if st.Credential != "" {
			st.AutoClaimActive = true
		}
	})
	if err != nil {
		return err
	}
	if st.Credential == "" {
		return ErrNoCredential
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t := &task{cancel: cancel, done: make(chan struct{})}
	r.tasks[userID] = t

	l := newLoop(userID, r.d, r.seed())
	go func() {
		defer close(t.done)
		defer r.deregister(userID, t)
		l.run(loopCtx)
	}()
	return nil
}

// Stop clears the persisted flag and cancels the loop, waiting for it to
// exit or for ctx to expire. ErrNotRunning still clears the flag, so a stop
// against a desynced flag-on/loop-dead user converges to inactive.
func (r *Registry) Stop(ctx context.Context, userID int64) error {
	if _, err := r.d.store.MutateUserState(ctx, userID, func(st *storage.UserState) {
		st.AutoClaimActive = false
	}); err != nil {
		return err
	}

	r.mu.Lock()
	t, ok := r.tasks[userID]
	r.mu.Unlock()
	if !ok {
		return ErrNotRunning
	}

	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports whether the persisted flag and the running loop agree.
func (r *Registry) Status(ctx context.Context, userID int64) (Status, error) {
	st, err := r.d.store.LoadUserState(ctx, userID)
	if err != nil {
		return StatusInactive, err
	}

	running := r.running(userID)
	switch {
	case st.AutoClaimActive && running:
		return StatusActive, nil
	case !st.AutoClaimActive && !running:
		return StatusInactive, nil
	default:
		return StatusDesynced, nil
	}
}

// Reconcile starts loops for every user whose persisted flag is on. Called
// once at application startup. Individual failures are logged and skipped.
func (r *Registry) Reconcile(ctx context.Context) (int, error) {
	ids, err := r.d.store.ActiveUsers(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, id := range ids {
		if err := r.Start(ctx, id); err != nil {
			r.d.log.Warn("reconcile start failed", logx.Int64("user_id", id), logx.Err(err))
			continue
		}
		started++
	}
	r.d.log.Info("reconcile finished", logx.Int("flagged", len(ids)), logx.Int("started", started))
	return started, nil
}

// StopAll cancels every loop without touching persisted flags, so the flags
// survive a restart and Reconcile resumes the same set of users.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	tasks := make([]*task, 0, len(r.tasks))
	for _, t := range r.tasks {
		t.cancel()
		tasks = append(tasks, t)
	}
	r.mu.Unlock()

	for _, t := range tasks {
		select {
		case <-t.done:
		case <-ctx.Done():
			return
		}
	}
}

// RunningUsers lists the users that currently have a live loop.
func (r *Registry) RunningUsers() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.tasks))
	for id, t := range r.tasks {
		select {
		case <-t.done:
		default:
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) running(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[userID]
	if !ok {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// deregister removes the entry unless Start already replaced it.
func (r *Registry) deregister(userID int64, t *task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.tasks[userID]; ok && cur == t {
		delete(r.tasks, userID)
	}
}
