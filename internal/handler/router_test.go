package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"epoch/internal/config"
	"epoch/internal/ingest"
	"epoch/internal/model"
	"epoch/internal/notify/notifytest"
	"epoch/internal/session"
	"epoch/internal/store"
	"epoch/internal/store/storetest"
	"epoch/internal/verify"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	store *store.Store
	rec   *notifytest.Recorder
	r     *gin.Engine
	cfg   *config.Config
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Slack.VerificationToken = "slack-token"
	cfg.Slack.CompanyURL = "https://example.com"
	cfg.Webhooks = config.WebhookConfig{GitHubSecret: "gh-secret", GitLabToken: "gl-token", BitbucketToken: "bb-token"}
	cfg.Admin.Token = "admin-token"
	cfg.Admin.VerifySecret = "verify-secret"

	s, _ := storetest.Open(t)
	ctx := context.Background()
	require.NoError(t, s.CreateTeam(ctx, &model.Team{ID: 1, Name: "core"}))
	require.NoError(t, s.CreateUser(ctx, &model.User{ID: "U1", Username: "alice", TeamID: 1, GitID: "alice-gh", BitbucketEmail: "alice@corp.io"}))
	require.NoError(t, s.CreateUser(ctx, &model.User{ID: "U9", Username: "boss", TeamID: 1}))

	rec := &notifytest.Recorder{}
	r, err := NewRouter(Deps{
		Config:  cfg,
		Store:   s,
		Machine: session.NewMachine(s, rec, cfg.Slack),
		Ingest:  ingest.New(s, rec),
		Verify:  verify.NewWorkflow(s, cfg.Admin.VerifySecret),
	})
	require.NoError(t, err)
	return &env{store: s, rec: rec, r: r, cfg: cfg}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) slash(t *testing.T, user, text string) slack.Msg {
	t.Helper()
	w := e.do(slashRequest("slack-token", user, text))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var msg slack.Msg
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, slack.ResponseTypeEphemeral, msg.ResponseType)
	return msg
}

func slashRequest(token, user, text string) *http.Request {
	form := url.Values{
		"token":        {token},
		"team_id":      {"T1"},
		"team_domain":  {"corp"},
		"channel_id":   {"C1"},
		"channel_name": {"general"},
		"user_id":      {user},
		"user_name":    {"whoever"},
		"command":      {"/epoch"},
		"text":         {text},
	}
	req := httptest.NewRequest(http.MethodPost, "/services/slack", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestSlashRejectsBadToken(t *testing.T) {
	e := newEnv(t)
	w := e.do(slashRequest("wrong", "U1", "start"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "You are not authorized.", w.Body.String())
}

func TestSlashStartStop(t *testing.T) {
	e := newEnv(t)

	msg := e.slash(t, "U1", "start")
	require.Len(t, msg.Attachments, 1)
	a := msg.Attachments[0]
	assert.Equal(t, "You have started a new Epoch session. You are now ONLINE.", a.Text)
	assert.Equal(t, "good", a.Color)
	assert.Equal(t, "Goal Hours (today)", a.Fields[0].Title)
	assert.Equal(t, "Total Hours (month)", a.Fields[1].Title)
	assert.Equal(t, "0.00", a.Fields[1].Value)
	assert.Equal(t, "Epoch API", a.Footer)

	msg = e.slash(t, "U1", "START")
	assert.Equal(t, "In order to use [start], you must be in OFFLINE mode. You are in ONLINE mode!", msg.Text)

	msg = e.slash(t, "U1", "stop")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "danger", msg.Attachments[0].Color)
	assert.Equal(t, "160", msg.Attachments[0].Fields[1].Value)

	assert.Len(t, e.rec.To("#work-progress"), 2)
	assert.Len(t, e.rec.To("#work-submit"), 1)
}

func TestSlashPauseResumeInfo(t *testing.T) {
	e := newEnv(t)
	e.slash(t, "U1", "start")

	msg := e.slash(t, "U1", "pause")
	assert.Equal(t, "warning", msg.Attachments[0].Color)

	msg = e.slash(t, "U1", "info")
	a := msg.Attachments[0]
	assert.Equal(t, "Your current state is PAUSED.", a.Text)
	assert.Equal(t, "Worked Time (session)", a.Fields[0].Title)

	msg = e.slash(t, "U1", "resume")
	assert.Equal(t, "You have resumed your session. Welcome back!", msg.Attachments[0].Text)
}

func TestSlashStatusAndErrors(t *testing.T) {
	e := newEnv(t)

	msg := e.slash(t, "U1", "status")
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "alice", msg.Attachments[0].Title)
	assert.Equal(t, "danger", msg.Attachments[0].Color)

	msg = e.slash(t, "U404", "start")
	assert.Equal(t, "Your user does not exist!", msg.Text)

	msg = e.slash(t, "U1", "dance")
	assert.Equal(t, usageText, msg.Text)

	msg = e.slash(t, "U1", "")
	assert.Equal(t, usageText, msg.Text)
}

func githubRequest(t *testing.T, event, secret string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/services/git", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	req.Header.Set("X-Hub-Signature", "sha1="+hex.EncodeToString(mac.Sum(nil)))
	mac256 := hmac.New(sha256.New, []byte(secret))
	mac256.Write(body)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac256.Sum(nil)))
	return req
}

const githubPush = `{
  "ref": "refs/heads/main",
  "repository": {"id": 42, "name": "epoch"},
  "sender": {"id": 7, "login": "alice-gh"},
  "commits": [
    {"id": "a1", "message": "fix tick drift\n\nbody", "url": "https://github.com/corp/epoch/commit/a1"},
    {"id": "a2", "message": "docs", "url": "https://github.com/corp/epoch/commit/a2"}
  ]
}`

func TestGitHubPush(t *testing.T) {
	e := newEnv(t)

	w := e.do(githubRequest(t, "push", "gh-secret", []byte(githubPush)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok": true, "commits": 2}`, w.Body.String())

	dms := e.rec.To("U1")
	require.Len(t, dms, 1)
	assert.Contains(t, dms[0].Text, "the epoch repository")

	w = e.do(githubRequest(t, "push", "forged", []byte(githubPush)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(githubRequest(t, "ping", "gh-secret", []byte(`{"zen": "keep it simple", "hook_id": 1}`)))
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(githubRequest(t, "issues", "gh-secret", []byte(`{}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, e.rec.To("U1"), 1)
}

func gitlabRequest(token string) *http.Request {
	body := `{
	  "object_kind": "push",
	  "project_id": 5,
	  "project": {"id": 5, "name": "site"},
	  "user_id": 3,
	  "user_username": "alice-gh",
	  "commits": [{"id": "c1", "message": "layout", "url": "https://gitlab.corp/site/commit/c1"}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/services/gitlab", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gitlab-Event", "Push Hook")
	req.Header.Set("X-Gitlab-Token", token)
	return req
}

func TestGitLabPush(t *testing.T) {
	e := newEnv(t)

	w := e.do(gitlabRequest("gl-token"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok": true, "commits": 1}`, w.Body.String())

	w = e.do(gitlabRequest("nope"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func bitbucketRequest(token, refType string) *http.Request {
	body := `{
	  "repository": {"id": 84, "name": "core-api", "slug": "core-api"},
	  "refChanges": [{"refId": "refs/heads/master", "type": "` + refType + `"}],
	  "changesets": {"values": [
	    {"toCommit": {"id": "b1", "message": "first\nmore", "committer": {"name": "Alice", "emailAddress": "alice@corp.io"}},
	     "links": {"self": [{"href": "https://stash.corp/commits/b1"}]}},
	    {"toCommit": {"id": "b2", "message": "second", "author": {"name": "Zed", "emailAddress": "zed@corp.io"}},
	     "links": {"self": [{"href": "https://stash.corp/commits/b2"}]}}
	  ]}
	}`
	req := httptest.NewRequest(http.MethodPost, "/services/bitbucket?token="+token, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestBitbucketPush(t *testing.T) {
	e := newEnv(t)

	w := e.do(bitbucketRequest("bb-token", "UPDATE"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok": true, "commits": 2}`, w.Body.String())
	assert.Len(t, e.rec.To("U1"), 1)

	w = e.do(bitbucketRequest("bb-token", "ADD"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok": true, "commits": 0}`, w.Body.String())

	w = e.do(bitbucketRequest("wrong", "UPDATE"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func adminRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(AdminTokenHeader, "admin-token")
	return req
}

func TestAdminRequiresToken(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, e.do(req).Code)
}

func TestAdminStatusAndLogs(t *testing.T) {
	e := newEnv(t)
	e.slash(t, "U1", "start")

	w := e.do(adminRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var status []model.UserStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.Len(t, status, 2)
	assert.Equal(t, model.StateOnline, status[0].State)
	assert.Equal(t, 160, status[0].GoalHours)

	w = e.do(adminRequest(http.MethodGet, "/api/users/alice/logs?from=2020-01-01", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = e.do(adminRequest(http.MethodGet, "/api/users/nobody/logs", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(adminRequest(http.MethodGet, "/api/users/alice/logs?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminVerifyFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	start := time.Now().UTC().Add(-2 * time.Hour)
	var ids []int64
	for i := 0; i < 2; i++ {
		l := &model.SessionLog{UserID: "U1", WorkTime: 3600000, Start: start, End: start.Add(time.Hour)}
		require.NoError(t, e.store.AppendSessionLog(ctx, l))
		ids = append(ids, l.ID)
	}

	w := e.do(adminRequest(http.MethodGet, "/api/users/alice/pending?verifier=boss&from=2000-01-01&to=2099-12-31", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var pending model.PendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pending))
	assert.Equal(t, "U9", pending.Verifier)
	require.Len(t, pending.Pending, 2)

	w = e.do(adminRequest(http.MethodPost, "/api/verify", model.VerifyRequest{Token: pending.Token, IDs: []int64{ids[0], 999}}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int64{ids[0]}, resp.Signed)
	assert.Equal(t, []int64{999}, resp.Unknown)
	require.Len(t, resp.Pending, 1)

	w = e.do(adminRequest(http.MethodPost, "/api/verify", model.VerifyRequest{Token: resp.Token, All: true}))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []int64{ids[1]}, resp.Signed)
	assert.Empty(t, resp.Pending)

	w = e.do(adminRequest(http.MethodPost, "/api/verify", model.VerifyRequest{Token: "garbage"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminForceLogout(t *testing.T) {
	e := newEnv(t)
	e.slash(t, "U1", "start")

	w := e.do(adminRequest(http.MethodPost, "/api/force-logout", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"logged_out": ["alice"]}`, w.Body.String())

	st, err := e.store.State(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, model.StateOffline, st)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCommitWhileOnlineAppearsInSessionReport(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.slash(t, "U1", "start")
	w := e.do(githubRequest(t, "push", "gh-secret", []byte(githubPush)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, e.rec.To("U1"), "no offline warning while ONLINE")

	_, applied, err := e.store.IncrementWorkTime(ctx, "U1", 1800000)
	require.NoError(t, err)
	require.True(t, applied)
	e.slash(t, "U1", "stop")

	reports := e.rec.To("#work-submit")
	require.Len(t, reports, 1)
	a := reports[0].Attachments[0]
	assert.Contains(t, a.Text, "`<https://github.com/corp/epoch/commit/a1|epoch>`: fix tick drift")
	assert.Contains(t, a.Text, "`<https://github.com/corp/epoch/commit/a2|epoch>`: docs")
	assert.Equal(t, "Session Hours (today)", a.Fields[0].Title)
	assert.Equal(t, "0.50", a.Fields[0].Value)
}
