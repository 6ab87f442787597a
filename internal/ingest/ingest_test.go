package ingest

import (
	"context"
	"testing"
	"time"

	"epoch/internal/model"
	"epoch/internal/notify/notifytest"
	"epoch/internal/store"
	"epoch/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var ctx = context.Background()

type fixture struct {
	store *store.Store
	db    *gorm.DB
	rec   *notifytest.Recorder
	in    *Ingester
}

func setup(t *testing.T) fixture {
	t.Helper()
	s, db := storetest.Open(t)
	require.NoError(t, s.CreateTeam(ctx, &model.Team{ID: 1, Name: "core"}))
	require.NoError(t, s.CreateUser(ctx, &model.User{
		ID: "U1", Username: "alice", TeamID: 1, GitID: "alice-gh", BitbucketEmail: "alice@corp.io",
	}))
	rec := &notifytest.Recorder{}
	in := New(s, rec)
	in.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return fixture{store: s, db: db, rec: rec, in: in}
}

func push(provider, login, email string, n int) Push {
	p := Push{
		Provider: provider,
		RepoID:   "101",
		RepoName: "epoch",
		Author:   Author{ExternalID: "7", Login: login, Email: email},
	}
	for i := 0; i < n; i++ {
		p.Commits = append(p.Commits, Commit{Message: "change", URL: "https://git/c"})
	}
	return p
}

func TestOfflineAuthorWarnedOncePerPush(t *testing.T) {
	f := setup(t)
	s, rec, in := f.store, f.rec, f.in

	out, err := in.Ingest(ctx, push(ProviderGitHub, "alice-gh", "", 3))
	require.NoError(t, err)
	assert.Equal(t, "U1", out.UserID)
	assert.Equal(t, 3, out.Logged)
	assert.True(t, out.Warned)

	dms := rec.To("U1")
	require.Len(t, dms, 1)
	assert.Equal(t, "I see you sent a commit for the epoch repository. You know you are OFFLINE with Epoch right?", dms[0].Text)

	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	commits, err := s.CommitLogs(ctx, "U1", at, at)
	require.NoError(t, err)
	assert.Len(t, commits, 3)
}

func TestOnlineAuthorNotWarned(t *testing.T) {
	f := setup(t)
	s, rec, in := f.store, f.rec, f.in
	_, err := s.StartSession(ctx, "U1", time.Now())
	require.NoError(t, err)

	out, err := in.Ingest(ctx, push(ProviderGitLab, "alice-gh", "", 1))
	require.NoError(t, err)
	assert.False(t, out.Warned)
	assert.Empty(t, rec.Messages())
}

func TestBitbucketResolvesByEmail(t *testing.T) {
	f := setup(t)
	rec, in := f.rec, f.in

	out, err := in.Ingest(ctx, push(ProviderBitbucket, "Alice A", "alice@corp.io", 1))
	require.NoError(t, err)
	assert.Equal(t, "U1", out.UserID)
	assert.Len(t, rec.To("U1"), 1)
}

func TestUnknownAuthorStillLogged(t *testing.T) {
	f := setup(t)
	rec, in := f.rec, f.in

	out, err := in.Ingest(ctx, push(ProviderGitHub, "stranger", "", 2))
	require.NoError(t, err)
	assert.Empty(t, out.UserID)
	assert.Equal(t, 2, out.Logged)
	assert.Empty(t, rec.Messages())

	var n int64
	require.NoError(t, f.db.Model(&model.CommitLog{}).Where("user_id IS NULL").Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestEmptyPushUpsertsRepoOnly(t *testing.T) {
	f := setup(t)
	s, rec, in := f.store, f.rec, f.in

	out, err := in.Ingest(ctx, push(ProviderGitHub, "alice-gh", "", 0))
	require.NoError(t, err)
	assert.Zero(t, out.Logged)
	assert.False(t, out.Warned)
	assert.Empty(t, rec.Messages())

	repo, err := s.UpsertRepository(ctx, ProviderGitHub, "101", "epoch")
	require.NoError(t, err)
	assert.Equal(t, out.Repo.ID, repo.ID)
}

func TestPushWithoutRepoRejected(t *testing.T) {
	f := setup(t)
	_, err := f.in.Ingest(ctx, Push{Provider: ProviderGitHub})
	assert.Error(t, err)
}
