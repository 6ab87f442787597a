// Package ingest records pushes from source-control webhooks as commit logs
// attributed to registered users.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"epoch/internal/logger"
	"epoch/internal/model"
	"epoch/internal/notify"
	"epoch/internal/store"
)

const (
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderBitbucket = "bitbucket"
)

type Author struct {
	ExternalID string
	Login      string
	Email      string
}

type Commit struct {
	Message string
	URL     string
}

// Push is a provider-neutral push by a single author.
type Push struct {
	Provider string
	RepoID   string
	RepoName string
	Author   Author
	Commits  []Commit
}

type Store interface {
	UpsertRepository(ctx context.Context, provider, externalID, name string) (*model.Repository, error)
	UpsertGitIdentity(ctx context.Context, id *model.GitIdentity) error
	UserByGitID(ctx context.Context, login string) (*model.User, error)
	UserByBitbucketEmail(ctx context.Context, email string) (*model.User, error)
	State(ctx context.Context, userID string) (model.State, error)
	AppendCommitLogs(ctx context.Context, logs []model.CommitLog) error
}

type Outcome struct {
	Repo   model.Repository
	UserID string
	Logged int
	Warned bool
}

type Ingester struct {
	store Store
	sink  notify.Sink
	now   func() time.Time
}

func New(st Store, sink notify.Sink) *Ingester {
	return &Ingester{store: st, sink: sink, now: time.Now}
}

func (in *Ingester) Ingest(ctx context.Context, p Push) (*Outcome, error) {
	if p.RepoID == "" {
		return nil, errors.New("ingest: push without repository id")
	}
	repo, err := in.store.UpsertRepository(ctx, p.Provider, p.RepoID, p.RepoName)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	out := &Outcome{Repo: *repo}
	now := in.now()

	identity := identityKey(p)
	if identity != "" {
		err := in.store.UpsertGitIdentity(ctx, &model.GitIdentity{
			Provider:   p.Provider,
			ExternalID: identity,
			Login:      p.Author.Login,
			Email:      p.Author.Email,
			SeenAt:     now,
		})
		if err != nil {
			logger.WarnContext(ctx, "ingest.identity_failed", "provider", p.Provider, "login", p.Author.Login, "err", err)
		}
	}

	user, err := in.resolve(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	var userID *string
	if user != nil {
		out.UserID = user.ID
		userID = &user.ID
	}

	if user != nil && len(p.Commits) > 0 {
		st, err := in.store.State(ctx, user.ID)
		if err != nil {
			logger.WarnContext(ctx, "ingest.state_failed", "user", user.ID, "err", err)
		} else if st == model.StateOffline {
			in.sink.DirectMessage(ctx, user.ID, fmt.Sprintf(
				"I see you sent a commit for the %s repository. You know you are OFFLINE with Epoch right?", repo.Name))
			out.Warned = true
		}
	}

	logs := make([]model.CommitLog, 0, len(p.Commits))
	for _, c := range p.Commits {
		logs = append(logs, model.CommitLog{
			RepoID:    repo.ID,
			UserID:    userID,
			Message:   c.Message,
			URL:       c.URL,
			CreatedAt: now,
		})
	}
	if err := in.store.AppendCommitLogs(ctx, logs); err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	out.Logged = len(logs)
	logger.InfoContext(ctx, "ingest.push", "provider", p.Provider, "repo", repo.Name, "user", out.UserID, "commits", out.Logged)
	return out, nil
}

// resolve maps the author to a registered user; nil when nobody matches.
func (in *Ingester) resolve(ctx context.Context, p Push) (*model.User, error) {
	var (
		u   *model.User
		err error
	)
	switch p.Provider {
	case ProviderBitbucket:
		u, err = in.store.UserByBitbucketEmail(ctx, p.Author.Email)
	default:
		u, err = in.store.UserByGitID(ctx, p.Author.Login)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func identityKey(p Push) string {
	switch {
	case p.Author.ExternalID != "":
		return p.Author.ExternalID
	case p.Author.Email != "":
		return p.Author.Email
	default:
		return p.Author.Login
	}
}
