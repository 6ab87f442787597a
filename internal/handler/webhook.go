package handler

import (
	"errors"
	"net/http"
	"strconv"

	"epoch/internal/config"
	"epoch/internal/ingest"
	"epoch/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/webhooks/v6/github"
	"github.com/go-playground/webhooks/v6/gitlab"
)

type WebhookHandler struct {
	ingest *ingest.Ingester
	github *github.Webhook
	gitlab *gitlab.Webhook
}

func NewWebhookHandler(in *ingest.Ingester, cfg config.WebhookConfig) (*WebhookHandler, error) {
	gh, err := github.New(github.Options.Secret(cfg.GitHubSecret))
	if err != nil {
		return nil, err
	}
	gl, err := gitlab.New(gitlab.Options.Secret(cfg.GitLabToken))
	if err != nil {
		return nil, err
	}
	if cfg.GitHubSecret == "" || cfg.GitLabToken == "" {
		logger.Warn("webhook.unsigned", "github", cfg.GitHubSecret != "", "gitlab", cfg.GitLabToken != "")
	}
	return &WebhookHandler{ingest: in, github: gh, gitlab: gl}, nil
}

// POST /services/git
func (h *WebhookHandler) GitHub(c *gin.Context) {
	payload, err := h.github.Parse(c.Request, github.PushEvent, github.PingEvent)
	if err != nil {
		h.reject(c, "github", err)
		return
	}
	push, ok := payload.(github.PushPayload)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	p := ingest.Push{
		Provider: ingest.ProviderGitHub,
		RepoID:   strconv.FormatInt(push.Repository.ID, 10),
		RepoName: push.Repository.Name,
		Author: ingest.Author{
			ExternalID: strconv.FormatInt(push.Sender.ID, 10),
			Login:      push.Sender.Login,
		},
	}
	for _, cm := range push.Commits {
		p.Commits = append(p.Commits, ingest.Commit{Message: cm.Message, URL: cm.URL})
	}
	h.record(c, p)
}

// POST /services/gitlab
func (h *WebhookHandler) GitLab(c *gin.Context) {
	payload, err := h.gitlab.Parse(c.Request, gitlab.PushEvents)
	if err != nil {
		h.reject(c, "gitlab", err)
		return
	}
	push := payload.(gitlab.PushEventPayload)

	repoID := push.ProjectID
	if repoID == 0 {
		repoID = push.Project.ID
	}
	p := ingest.Push{
		Provider: ingest.ProviderGitLab,
		RepoID:   strconv.FormatInt(repoID, 10),
		RepoName: push.Project.Name,
		Author: ingest.Author{
			ExternalID: strconv.FormatInt(push.UserID, 10),
			Login:      push.UserUsername,
			Email:      push.UserEmail,
		},
	}
	for _, cm := range push.Commits {
		p.Commits = append(p.Commits, ingest.Commit{Message: cm.Message, URL: cm.URL})
	}
	h.record(c, p)
}

type bitbucketPerson struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
}

// bitbucketPayload is the Bitbucket Server post-receive hook body.
type bitbucketPayload struct {
	Repository struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"repository"`
	RefChanges []struct {
		RefID string `json:"refId"`
		Type  string `json:"type"`
	} `json:"refChanges"`
	Changesets struct {
		Values []struct {
			ToCommit struct {
				ID        string          `json:"id"`
				Message   string          `json:"message"`
				Author    bitbucketPerson `json:"author"`
				Committer bitbucketPerson `json:"committer"`
			} `json:"toCommit"`
			Links struct {
				Self []struct {
					Href string `json:"href"`
				} `json:"self"`
			} `json:"links"`
		} `json:"values"`
	} `json:"changesets"`
}

// POST /services/bitbucket
func (h *WebhookHandler) Bitbucket(c *gin.Context) {
	var body bitbucketPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if body.Repository.ID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing repository"})
		return
	}

	// branch creation and deletion replay whole histories; only plain
	// updates carry new work
	update := false
	for _, rc := range body.RefChanges {
		if rc.Type == "UPDATE" {
			update = true
		}
	}

	repoID := strconv.FormatInt(body.Repository.ID, 10)
	pushes := map[string]*ingest.Push{}
	var order []string
	if update {
		for _, v := range body.Changesets.Values {
			who := v.ToCommit.Committer
			if who.EmailAddress == "" {
				who = v.ToCommit.Author
			}
			p, ok := pushes[who.EmailAddress]
			if !ok {
				p = &ingest.Push{
					Provider: ingest.ProviderBitbucket,
					RepoID:   repoID,
					RepoName: body.Repository.Name,
					Author:   ingest.Author{Login: who.Name, Email: who.EmailAddress},
				}
				pushes[who.EmailAddress] = p
				order = append(order, who.EmailAddress)
			}
			url := ""
			if len(v.Links.Self) > 0 {
				url = v.Links.Self[0].Href
			}
			p.Commits = append(p.Commits, ingest.Commit{Message: v.ToCommit.Message, URL: url})
		}
	} else {
		logger.InfoContext(c.Request.Context(), "webhook.bitbucket_skipped", "repo", body.Repository.Name, "ref_changes", len(body.RefChanges))
	}

	if len(order) == 0 {
		h.record(c, ingest.Push{Provider: ingest.ProviderBitbucket, RepoID: repoID, RepoName: body.Repository.Name})
		return
	}
	logged := 0
	for _, key := range order {
		out, err := h.ingest.Ingest(c.Request.Context(), *pushes[key])
		if err != nil {
			logger.ErrorContext(c.Request.Context(), "webhook.ingest_failed", "provider", ingest.ProviderBitbucket, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
			return
		}
		logged += out.Logged
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "commits": logged})
}

func (h *WebhookHandler) record(c *gin.Context, p ingest.Push) {
	out, err := h.ingest.Ingest(c.Request.Context(), p)
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "webhook.ingest_failed", "provider", p.Provider, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingest failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "commits": out.Logged})
}

func (h *WebhookHandler) reject(c *gin.Context, provider string, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, github.ErrHMACVerificationFailed),
		errors.Is(err, github.ErrMissingHubSignatureHeader),
		errors.Is(err, gitlab.ErrGitLabTokenVerificationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, github.ErrEventNotFound), errors.Is(err, gitlab.ErrEventNotFound):
		// events we do not subscribe to are acknowledged and dropped
		c.JSON(http.StatusOK, gin.H{"ok": true, "ignored": true})
		return
	}
	logger.WarnContext(c.Request.Context(), "webhook.rejected", "provider", provider, "err", err)
	c.JSON(status, gin.H{"error": err.Error()})
}
