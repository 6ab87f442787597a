// Package session implements the per-user work state machine:
// OFFLINE -> ONLINE <-> PAUSED -> OFFLINE.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"epoch/internal/config"
	"epoch/internal/goal"
	"epoch/internal/logger"
	"epoch/internal/model"
	"epoch/internal/notify"
	"epoch/internal/report"
)

const forceLogoutText = "Epoch was restarted and you were logged out. Please use `/epoch start`."

// Store is the slice of the session store and user registry the machine
// depends on.
type Store interface {
	Session(ctx context.Context, userID string) (*model.UserSession, error)
	StartSession(ctx context.Context, userID string, at time.Time) (bool, error)
	CompareAndSetState(ctx context.Context, userID string, from, to model.State) (bool, error)
	WorkTime(ctx context.Context, userID string) (int64, error)
	ResetSession(ctx context.Context, userID string) error
	AppendSessionLog(ctx context.Context, l *model.SessionLog) error
	AppendStateChange(ctx context.Context, userID string, st, prev model.State, at time.Time) error
	ActiveUserIDs(ctx context.Context) ([]string, error)
	AllUsers(ctx context.Context) ([]model.User, error)
	UserByID(ctx context.Context, id string) (*model.User, error)
	HoursWorkedThisMonth(ctx context.Context, userID string, now time.Time) (float64, error)
	CommitLogs(ctx context.Context, userID string, from, to time.Time) ([]model.CommitLog, error)
}

// Result describes the outcome of an accepted command.
type Result struct {
	User       model.User
	State      model.State
	MonthHours float64
	Goal       goal.Goal

	// Set by stop and force-logout only.
	Log         *model.SessionLog
	WorkedHours float64
	Commits     []model.CommitLog
}

type Machine struct {
	store   Store
	sink    notify.Sink
	brand   report.Branding
	channel string
	now     func() time.Time
	locks   keyedMutex
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func NewMachine(st Store, sink notify.Sink, cfg config.SlackConfig, opts ...Option) *Machine {
	m := &Machine{
		store:   st,
		sink:    sink,
		brand:   report.BrandingFrom(cfg),
		channel: cfg.ProgressChannel,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Start(ctx context.Context, userID string) (*Result, error) {
	defer m.locks.lock(userID)()

	user, us, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if us.State != model.StateOffline {
		return nil, &TransitionError{Command: "start", Required: model.StateOffline, Actual: us.State}
	}
	now := m.now()
	ok, err := m.store.StartSession(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", userID, err)
	}
	if !ok {
		return nil, m.rejected(ctx, "start", userID, model.StateOffline)
	}
	m.audit(ctx, userID, model.StateOnline, model.StateOffline, now)
	m.announce(ctx, user.Username+" is now online!", notify.IconOnline)

	res := &Result{User: *user, State: model.StateOnline}
	m.fillMonth(ctx, res, now)
	logger.InfoContext(ctx, "session.start", "user", userID)
	return res, nil
}

func (m *Machine) Stop(ctx context.Context, userID string) (*Result, error) {
	defer m.locks.lock(userID)()

	user, us, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if us.State != model.StateOnline {
		return nil, &TransitionError{Command: "stop", Required: model.StateOnline, Actual: us.State}
	}
	return m.logout(ctx, user, us, "stop")
}

func (m *Machine) Pause(ctx context.Context, userID string) (*Result, error) {
	return m.toggle(ctx, userID, "pause", model.StateOnline, model.StatePaused, " went for a break!", notify.IconPaused)
}

func (m *Machine) Resume(ctx context.Context, userID string) (*Result, error) {
	return m.toggle(ctx, userID, "resume", model.StatePaused, model.StateOnline, " is back from their break!", notify.IconOnline)
}

// ForceLogout ends the session of a user who is ONLINE or PAUSED, exactly as
// stop would, and tells them about it.
func (m *Machine) ForceLogout(ctx context.Context, userID string) (*Result, error) {
	defer m.locks.lock(userID)()

	user, us, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if us.State == model.StateOffline {
		return nil, fmt.Errorf("force logout %s: %w", userID, ErrAlreadyOffline)
	}
	res, err := m.logout(ctx, user, us, "force-logout")
	if err != nil {
		return nil, err
	}
	m.sink.DirectMessage(ctx, userID, forceLogoutText)
	return res, nil
}

// ForceLogoutAll logs out every user who is not OFFLINE. A failure for one
// user does not stop the others.
func (m *Machine) ForceLogoutAll(ctx context.Context) ([]*Result, error) {
	ids, err := m.store.ActiveUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("force logout: %w", err)
	}
	var (
		out  []*Result
		errs []error
	)
	for _, id := range ids {
		res, err := m.ForceLogout(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrAlreadyOffline) {
				logger.ErrorContext(ctx, "session.force_logout_failed", "user", id, "err", err)
				errs = append(errs, err)
			}
			continue
		}
		out = append(out, res)
	}
	logger.InfoContext(ctx, "session.force_logout_all", "count", len(out))
	return out, errors.Join(errs...)
}

func (m *Machine) toggle(ctx context.Context, userID, cmd string, from, to model.State, suffix, icon string) (*Result, error) {
	defer m.locks.lock(userID)()

	user, us, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if us.State != from {
		return nil, &TransitionError{Command: cmd, Required: from, Actual: us.State}
	}
	ok, err := m.store.CompareAndSetState(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd, userID, err)
	}
	if !ok {
		return nil, m.rejected(ctx, cmd, userID, from)
	}
	m.audit(ctx, userID, to, from, m.now())
	m.announce(ctx, user.Username+suffix, icon)
	logger.InfoContext(ctx, "session."+cmd, "user", userID)
	return &Result{User: *user, State: to}, nil
}

// logout flips the state first so the accrual increment, which only
// applies to ONLINE rows, cannot land after work_time has been read.
// The log is written before the counter is reset.
func (m *Machine) logout(ctx context.Context, user *model.User, us *model.UserSession, cmd string) (*Result, error) {
	now := m.now()
	ok, err := m.store.CompareAndSetState(ctx, user.ID, us.State, model.StateOffline)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd, user.ID, err)
	}
	if !ok {
		return nil, m.rejected(ctx, cmd, user.ID, us.State)
	}
	m.audit(ctx, user.ID, model.StateOffline, us.State, now)

	work, err := m.store.WorkTime(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read work time: %w", cmd, user.ID, err)
	}
	worked, err := m.store.HoursWorkedThisMonth(ctx, user.ID, now)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd, user.ID, err)
	}
	g := goal.Today(user.MonthlyHours, worked, now)

	entry := &model.SessionLog{UserID: user.ID, WorkTime: work, Start: us.StartedAt, End: now}
	if err := m.store.AppendSessionLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd, user.ID, err)
	}
	if err := m.store.ResetSession(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("%s %s: %w", cmd, user.ID, err)
	}

	m.announce(ctx, user.Username+" is now offline...", notify.IconOffline)

	commits, err := m.store.CommitLogs(ctx, user.ID, us.StartedAt, now)
	if err != nil {
		logger.WarnContext(ctx, "session.commits_failed", "user", user.ID, "err", err)
	}
	res := &Result{
		User:        *user,
		State:       model.StateOffline,
		MonthHours:  worked + entry.Hours(),
		Goal:        g,
		Log:         entry,
		WorkedHours: entry.Hours(),
		Commits:     commits,
	}
	m.sink.Post(ctx, report.Session(m.brand, *user, commits, res.WorkedHours, g, now))
	logger.InfoContext(ctx, "session.stop", "user", user.ID, "cmd", cmd, "work_ms", work, "log_id", entry.ID)
	return res, nil
}

func (m *Machine) load(ctx context.Context, userID string) (*model.User, *model.UserSession, error) {
	user, err := m.store.UserByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	us, err := m.store.Session(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return user, us, nil
}

// rejected reports a lost compare-and-set with the state that won.
func (m *Machine) rejected(ctx context.Context, cmd, userID string, required model.State) error {
	actual := model.State("UNKNOWN")
	if us, err := m.store.Session(ctx, userID); err == nil {
		actual = us.State
	}
	return &TransitionError{Command: cmd, Required: required, Actual: actual}
}

func (m *Machine) audit(ctx context.Context, userID string, st, prev model.State, at time.Time) {
	if err := m.store.AppendStateChange(ctx, userID, st, prev, at); err != nil {
		logger.ErrorContext(ctx, "session.audit_failed", "user", userID, "state", st, "err", err)
	}
}

func (m *Machine) announce(ctx context.Context, text, icon string) {
	m.sink.ChannelMessage(ctx, m.channel, text, m.brand.BotName, icon)
}

func (m *Machine) fillMonth(ctx context.Context, res *Result, now time.Time) {
	worked, err := m.store.HoursWorkedThisMonth(ctx, res.User.ID, now)
	if err != nil {
		logger.WarnContext(ctx, "session.month_hours_failed", "user", res.User.ID, "err", err)
		return
	}
	res.MonthHours = worked
	res.Goal = goal.Today(res.User.MonthlyHours, worked, now)
}
