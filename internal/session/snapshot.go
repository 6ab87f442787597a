package session

import (
	"context"
	"time"

	"epoch/internal/goal"
	"epoch/internal/model"
)

// Snapshot is a read-only view of a user's session for info and status
// queries.
type Snapshot struct {
	User       model.User
	State      model.State
	WorkTime   int64
	StartedAt  time.Time
	MonthHours float64
	Goal       goal.Goal
}

func (s Snapshot) SessionHours() float64 {
	return float64(s.WorkTime) / float64(time.Hour/time.Millisecond)
}

func (m *Machine) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	user, us, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.snapshot(ctx, *user, us)
}

func (m *Machine) Snapshots(ctx context.Context) ([]Snapshot, error) {
	users, err := m.store.AllUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(users))
	for _, u := range users {
		us, err := m.store.Session(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		snap, err := m.snapshot(ctx, u, us)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

func (m *Machine) snapshot(ctx context.Context, u model.User, us *model.UserSession) (*Snapshot, error) {
	now := m.now()
	worked, err := m.store.HoursWorkedThisMonth(ctx, u.ID, now)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		User:       u,
		State:      us.State,
		WorkTime:   us.WorkTime,
		StartedAt:  us.StartedAt,
		MonthHours: worked,
		Goal:       goal.Today(u.MonthlyHours, worked, now),
	}, nil
}
