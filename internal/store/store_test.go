package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"epoch/internal/model"
	"epoch/internal/store"
	"epoch/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func TestCreateUserCreatesOfflineSession(t *testing.T) {
	s, _ := storetest.Open(t)
	u := storetest.User(t, s, "U1", "alice")

	st, err := s.State(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateOffline, st)

	ms, err := s.WorkTime(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, ms)

	goal, err := s.MonthlyGoal(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 160, goal)
}

func TestCreateUserDefaultsAndValidation(t *testing.T) {
	s, _ := storetest.Open(t)
	require.NoError(t, s.CreateTeam(ctx, &model.Team{ID: 7, Name: "ops"}))

	u := &model.User{ID: "U2", Username: "bob", TeamID: 7}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.Equal(t, store.DefaultMonthlyHours, u.MonthlyHours)

	err := s.CreateUser(ctx, &model.User{ID: "U3", Username: "carol", TeamID: 99})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.State(ctx, "U3")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUserLookups(t *testing.T) {
	s, _ := storetest.Open(t)
	require.NoError(t, s.CreateTeam(ctx, &model.Team{ID: 1, Name: "core"}))
	require.NoError(t, s.CreateUser(ctx, &model.User{
		ID: "U1", Username: "alice", TeamID: 1, GitID: "alice-gh", BitbucketEmail: "alice@corp.io",
	}))

	u, err := s.UserByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "U1", u.ID)

	u, err = s.UserByGitID(ctx, "alice-gh")
	require.NoError(t, err)
	assert.Equal(t, "U1", u.ID)

	u, err = s.UserByBitbucketEmail(ctx, "alice@corp.io")
	require.NoError(t, err)
	assert.Equal(t, "U1", u.ID)

	_, err = s.UserByGitID(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.UserByName(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetUserTeam(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	require.NoError(t, s.CreateTeam(ctx, &model.Team{ID: 2, Name: "web"}))

	require.NoError(t, s.SetUserTeam(ctx, "U1", 2))
	require.NoError(t, s.SetUserTeam(ctx, "U1", 2))
	u, err := s.UserByID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, 2, u.TeamID)

	assert.ErrorIs(t, s.SetUserTeam(ctx, "U1", 42), store.ErrNotFound)
	assert.ErrorIs(t, s.SetUserTeam(ctx, "U404", 2), store.ErrNotFound)
}

func TestStartSessionIsCompareAndSet(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetWorkTime(ctx, "U1", 1234))
	ok, err := s.StartSession(ctx, "U1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	us, err := s.Session(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.StateOnline, us.State)
	assert.Zero(t, us.WorkTime)
	assert.True(t, us.StartedAt.Equal(now))

	ok, err = s.StartSession(ctx, "U1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompareAndSetState(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")

	ok, err := s.CompareAndSetState(ctx, "U1", model.StateOnline, model.StatePaused)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetState(ctx, "U1", model.StateOnline))
	ok, err = s.CompareAndSetState(ctx, "U1", model.StateOnline, model.StatePaused)
	require.NoError(t, err)
	assert.True(t, ok)

	st, err := s.State(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, st)
}

func TestIncrementWorkTimeOnlyWhileOnline(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")

	_, applied, err := s.IncrementWorkTime(ctx, "U1", 5000)
	require.NoError(t, err)
	assert.False(t, applied)

	_, err = s.StartSession(ctx, "U1", time.Now())
	require.NoError(t, err)
	total, applied, err := s.IncrementWorkTime(ctx, "U1", 5000)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.EqualValues(t, 5000, total)

	total, _, err = s.IncrementWorkTime(ctx, "U1", 6000)
	require.NoError(t, err)
	assert.EqualValues(t, 11000, total)

	require.NoError(t, s.SetState(ctx, "U1", model.StatePaused))
	_, applied, err = s.IncrementWorkTime(ctx, "U1", 5000)
	require.NoError(t, err)
	assert.False(t, applied)

	ms, err := s.WorkTime(ctx, "U1")
	require.NoError(t, err)
	assert.EqualValues(t, 11000, ms)
}

func TestActiveUserIDs(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	storetest.User(t, s, "U2", "bob")
	storetest.User(t, s, "U3", "carol")
	require.NoError(t, s.SetState(ctx, "U1", model.StateOnline))
	require.NoError(t, s.SetState(ctx, "U3", model.StatePaused))

	ids, err := s.ActiveUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U3"}, ids)
}

func TestHoursWorkedThisMonth(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	hours, err := s.HoursWorkedThisMonth(ctx, "U1", now)
	require.NoError(t, err)
	assert.Zero(t, hours)

	for _, l := range []model.SessionLog{
		{UserID: "U1", WorkTime: 2 * 3600000, Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{UserID: "U1", WorkTime: 1800000, Start: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
		{UserID: "U1", WorkTime: 9 * 3600000, Start: time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)},
		{UserID: "U1", WorkTime: 9 * 3600000, Start: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	} {
		l := l
		l.End = l.Start.Add(time.Hour)
		require.NoError(t, s.AppendSessionLog(ctx, &l))
	}

	hours, err = s.HoursWorkedThisMonth(ctx, "U1", now)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, hours, 1e-9)
}

func TestListSessionLogsNewestFirst(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		start := base.AddDate(0, 0, i)
		require.NoError(t, s.AppendSessionLog(ctx, &model.SessionLog{
			UserID: "U1", WorkTime: int64(i+1) * 1000, Start: start, End: start.Add(time.Hour),
		}))
	}

	logs, err := s.ListSessionLogs(ctx, "U1", base, base.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.EqualValues(t, 3000, logs[0].WorkTime)
	assert.EqualValues(t, 1000, logs[2].WorkTime)

	logs, err = s.ListSessionLogs(ctx, "U1", base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.EqualValues(t, 2000, logs[0].WorkTime)
}

func TestDayTargetedCorrections(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.UpdateSessionLogByDay(ctx, "U1", day, 1000, "U9")
	assert.ErrorIs(t, err, store.ErrNotFound)

	first := &model.SessionLog{UserID: "U1", WorkTime: 1000, Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}
	require.NoError(t, s.AppendSessionLog(ctx, first))

	id, err := s.UpdateSessionLogByDay(ctx, "U1", day, 7200000, "U9")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
	got, err := s.SessionLog(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 7200000, got.WorkTime)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, "U9", *got.ApprovedBy)

	second := &model.SessionLog{UserID: "U1", WorkTime: 500, Start: day.Add(14 * time.Hour), End: day.Add(15 * time.Hour)}
	require.NoError(t, s.AppendSessionLog(ctx, second))

	_, err = s.DeleteSessionLogByDay(ctx, "U1", day)
	require.ErrorIs(t, err, store.ErrAmbiguous)
	var amb *store.AmbiguousError
	require.True(t, errors.As(err, &amb))
	assert.Equal(t, []int64{first.ID, second.ID}, amb.IDs)

	logs, err := s.ListSessionLogs(ctx, "U1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	require.NoError(t, s.DeleteSessionLog(ctx, second.ID))
	assert.ErrorIs(t, s.DeleteSessionLog(ctx, second.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateSessionLog(ctx, second.ID, 1, "U9"), store.ErrNotFound)
}

func TestApproveSessionLogsIsIdempotent(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	l := &model.SessionLog{UserID: "U1", WorkTime: 1000, Start: start, End: start.Add(time.Hour)}
	require.NoError(t, s.AppendSessionLog(ctx, l))

	_, err := s.ApproveSessionLogs(ctx, []int64{l.ID}, "U2")
	require.NoError(t, err)
	_, err = s.ApproveSessionLogs(ctx, []int64{l.ID}, "U2")
	require.NoError(t, err)

	pending, err := s.ListUnverifiedLogs(ctx, "U1", start.AddDate(0, 0, -1), start.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, pending)

	got, err := s.SessionLog(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified())
	assert.Equal(t, "U2", *got.ApprovedBy)
}

func TestRepositoryUpsertAndCommitLogs(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")

	r1, err := s.UpsertRepository(ctx, "github", "42", "epoch")
	require.NoError(t, err)
	r2, err := s.UpsertRepository(ctx, "github", "42", "epoch-renamed")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
	assert.Equal(t, "epoch-renamed", r2.Name)

	require.NoError(t, s.UpsertGitIdentity(ctx, &model.GitIdentity{Provider: "github", ExternalID: "7", Login: "alice-gh"}))
	require.NoError(t, s.UpsertGitIdentity(ctx, &model.GitIdentity{Provider: "github", ExternalID: "7", Login: "alice-new"}))

	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	uid := "U1"
	require.NoError(t, s.AppendCommitLogs(ctx, []model.CommitLog{
		{RepoID: r1.ID, UserID: &uid, Message: "fix: tick drift\n\nlong body", URL: "https://git/1", CreatedAt: at},
		{RepoID: r1.ID, Message: "anonymous", URL: "https://git/2", CreatedAt: at},
	}))

	commits, err := s.CommitLogs(ctx, "U1", at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "epoch-renamed", commits[0].Repository.Name)
	assert.Equal(t, "https://git/1", commits[0].URL)
}

func TestStateChangesAppendOnly(t *testing.T) {
	s, _ := storetest.Open(t)
	storetest.User(t, s, "U1", "alice")
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.AppendStateChange(ctx, "U1", model.StateOnline, model.StateOffline, at))
	require.NoError(t, s.AppendStateChange(ctx, "U1", model.StatePaused, model.StateOnline, at.Add(time.Minute)))

	changes, err := s.StateChanges(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, model.StateOnline, changes[0].State)
	assert.Equal(t, model.StateOnline, changes[1].PrevState)
}
