// Package pulse runs the background accrual loop that credits worked time
// to ONLINE users and nudges them by direct message.
package pulse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"epoch/internal/config"
	"epoch/internal/logger"
	"epoch/internal/model"
	"epoch/internal/notify"

	"github.com/robfig/cron/v3"
)

const hourMs = int64(time.Hour / time.Millisecond)

var ErrMarkerMissing = errors.New("liveness marker missing")

type Store interface {
	AllUsers(ctx context.Context) ([]model.User, error)
	State(ctx context.Context, userID string) (model.State, error)
	IncrementWorkTime(ctx context.Context, userID string, ms int64) (int64, bool, error)
	Close() error
}

// tracked mirrors what the engine last saw of a user. The store stays
// authoritative; this only dedups notifications.
type tracked struct {
	workMs   int64 // last credited total
	idleMs   int64
	notified int64 // hour watermark
}

type Engine struct {
	store   Store
	sink    notify.Sink
	marker  *Marker
	cfg     config.PulseConfig
	ops     string
	botName string
	now     func() time.Time

	mu         sync.Mutex
	lastCredit time.Time
	ticks      int
	users      map[string]*tracked
	order      []string

	stopped  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(st Store, sink notify.Sink, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		sink:    sink,
		marker:  NewMarker(cfg.Pulse.MarkerFile),
		cfg:     cfg.Pulse,
		ops:     cfg.Slack.OpsChannel,
		botName: cfg.Slack.BotName,
		now:     time.Now,
		users:   make(map[string]*tracked),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lastCredit = e.now()
	return e
}

func (e *Engine) Marker() *Marker { return e.marker }

// Run creates the liveness marker and ticks until ctx is cancelled, Stop is
// called or the marker disappears. In-flight tick work finishes before Run
// returns.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.marker.Create(); err != nil {
		return err
	}
	e.mu.Lock()
	e.lastCredit = e.now()
	e.mu.Unlock()

	// a tick in flight finishes its store work after ctx is cancelled
	tickCtx := context.WithoutCancel(ctx)
	cl := logger.CronLogger{}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc("@every "+e.cfg.Tick.String(), func() { e.Tick(tickCtx, e.now()) }); err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	c.Start()
	logger.Info("pulse.started", "tick", e.cfg.Tick, "marker", e.marker.Path())
	e.sink.ChannelMessage(ctx, e.ops, "Epoch's Pulse has now been started!", e.botName, notify.IconRocket)

	select {
	case <-ctx.Done():
		e.Stop()
	case <-e.done:
	}
	<-c.Stop().Done()
	logger.Info("pulse.stopped")

	if !e.marker.Exists() && ctx.Err() == nil {
		return ErrMarkerMissing
	}
	return nil
}

// Stop asks the loop to finish. Ticks after Stop are no-ops.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.doneOnce.Do(func() { close(e.done) })
}

func (e *Engine) Stopped() bool { return e.stopped.Load() }

// Tick runs one iteration of the loop as of now.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	if e.stopped.Load() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks++
	if e.cfg.LivenessEvery > 0 && e.ticks%e.cfg.LivenessEvery == 0 && !e.marker.Exists() {
		e.die(ctx)
		return
	}

	elapsed := now.Sub(e.lastCredit)
	if elapsed < e.cfg.CreditThreshold {
		return
	}
	e.lastCredit = now
	e.credit(ctx, elapsed.Milliseconds())
}

func (e *Engine) credit(ctx context.Context, ms int64) {
	e.refresh(ctx)
	for _, id := range e.order {
		sctx, cancel := e.storeContext(ctx)
		e.creditUser(sctx, id, e.users[id], ms)
		cancel()
	}
}

// refresh adds users registered since the last credit. Users are never
// evicted.
func (e *Engine) refresh(ctx context.Context) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	users, err := e.store.AllUsers(sctx)
	if err != nil {
		logger.Warn("pulse.refresh_failed", "err", err)
		return
	}
	for _, u := range users {
		if _, ok := e.users[u.ID]; !ok {
			e.users[u.ID] = &tracked{}
			e.order = append(e.order, u.ID)
		}
	}
}

func (e *Engine) creditUser(ctx context.Context, id string, t *tracked, ms int64) {
	st, err := e.store.State(ctx, id)
	if err != nil {
		logger.Warn("pulse.state_failed", "user", id, "err", err)
		return
	}

	switch st {
	case model.StateOnline:
		total, applied, err := e.store.IncrementWorkTime(ctx, id, ms)
		if err != nil {
			logger.Warn("pulse.increment_failed", "user", id, "err", err)
			return
		}
		if !applied {
			return
		}
		hours := total / hourMs
		if total < t.workMs || hours < t.notified {
			// a new session started since the last credit
			t.notified = 0
		}
		t.workMs, t.idleMs = total, 0
		if hours >= 1 && hours > t.notified {
			t.notified = hours
			e.sink.DirectMessage(ctx, id, fmt.Sprintf("You have been working for %d hours this session.", hours))
		}

	case model.StatePaused:
		t.idleMs += ms
		if t.idleMs > e.cfg.IdleReminder.Milliseconds() {
			t.idleMs = 0
			e.sink.DirectMessage(ctx, id, fmt.Sprintf(
				"You have been idle/paused for %d minutes. When you get back please use `/epoch resume`.",
				int(e.cfg.IdleReminder.Minutes())))
		}

	case model.StateOffline:
		t.workMs, t.idleMs, t.notified = 0, 0, 0
	}
}

func (e *Engine) die(ctx context.Context) {
	logger.Error("pulse.liveness_failed", "marker", e.marker.Path())
	e.Stop()
	e.sink.ChannelMessage(ctx, e.ops, "Epoch's Pulse has stopped! It died!?", e.botName, notify.IconBoom)
	if err := e.store.Close(); err != nil {
		logger.Warn("pulse.close_failed", "err", err)
	}
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}
