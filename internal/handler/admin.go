package handler

import (
	"errors"
	"net/http"
	"time"

	"epoch/internal/logger"
	"epoch/internal/model"
	"epoch/internal/report"
	"epoch/internal/session"
	"epoch/internal/store"
	"epoch/internal/verify"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	store   *store.Store
	machine *session.Machine
	verify  *verify.Workflow
}

func NewAdminHandler(st *store.Store, m *session.Machine, w *verify.Workflow) *AdminHandler {
	return &AdminHandler{store: st, machine: m, verify: w}
}

// GET /api/status
func (h *AdminHandler) Status(c *gin.Context) {
	snaps, err := h.machine.Snapshots(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	out := make([]model.UserStatus, 0, len(snaps))
	for _, s := range snaps {
		st := model.UserStatus{User: s.User, State: s.State, MonthHours: s.MonthHours, GoalHours: s.User.MonthlyHours}
		if !s.StartedAt.IsZero() {
			st.StartedAt = s.StartedAt.UTC().Format(time.RFC3339)
		}
		out = append(out, st)
	}
	c.JSON(http.StatusOK, out)
}

// GET /api/users/:name/logs?from=2026-03-01&to=2026-03-31
func (h *AdminHandler) Logs(c *gin.Context) {
	user, from, to, ok := h.userRange(c)
	if !ok {
		return
	}
	logs, err := h.store.ListSessionLogs(c.Request.Context(), user.ID, from, to)
	if err != nil {
		fail(c, err)
		return
	}
	if logs == nil {
		logs = []model.SessionLog{}
	}
	c.JSON(http.StatusOK, logs)
}

// GET /api/users/:name/pending?verifier=boss&from=&to=
func (h *AdminHandler) Pending(c *gin.Context) {
	user, from, to, ok := h.userRange(c)
	if !ok {
		return
	}
	verifier, err := h.store.UserByName(c.Request.Context(), c.Query("verifier"))
	if err != nil {
		fail(c, err)
		return
	}
	p, err := h.verify.Open(c.Request.Context(), verifier.ID, user.ID, from, to)
	if err != nil {
		fail(c, err)
		return
	}
	token, err := h.verify.Seal(p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.PendingResponse{
		Verifier: verifier.ID,
		Target:   user.ID,
		Pending:  nonNil(p.Logs()),
		Token:    token,
	})
}

// POST /api/verify  body: {"token":"...","ids":[1,2]} or {"token":"...","all":true}
func (h *AdminHandler) Verify(c *gin.Context) {
	var req model.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ctx := c.Request.Context()
	p, err := h.verify.Unseal(ctx, req.Token)
	if err != nil {
		fail(c, err)
		return
	}

	var resp model.VerifyResponse
	if req.All {
		resp.Signed, err = p.SignAll(ctx)
	} else {
		resp.Signed, resp.Unknown, err = p.SignIDs(ctx, req.IDs)
	}
	if err != nil {
		fail(c, err)
		return
	}
	if resp.Token, err = h.verify.Seal(p); err != nil {
		fail(c, err)
		return
	}
	resp.Pending = nonNil(p.Logs())
	if resp.Signed == nil {
		resp.Signed = []int64{}
	}
	logger.InfoContext(ctx, "admin.verify", "verifier", p.Verifier, "target", p.Target, "signed", len(resp.Signed), "unknown", len(resp.Unknown))
	c.JSON(http.StatusOK, resp)
}

// POST /api/force-logout
func (h *AdminHandler) ForceLogout(c *gin.Context) {
	results, err := h.machine.ForceLogoutAll(c.Request.Context())
	resp := model.ForceLogoutResponse{LoggedOut: []string{}}
	for _, r := range results {
		resp.LoggedOut = append(resp.LoggedOut, r.User.Username)
	}
	if err != nil {
		logger.ErrorContext(c.Request.Context(), "admin.force_logout_partial", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "logged_out": resp.LoggedOut})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) userRange(c *gin.Context) (*model.User, time.Time, time.Time, bool) {
	user, err := h.store.UserByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return nil, time.Time{}, time.Time{}, false
	}
	from, to, err := report.ParseRange(c.Query("from"), c.Query("to"), timeNow())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, time.Time{}, time.Time{}, false
	}
	return user, from, to, true
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, verify.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.ErrorContext(c.Request.Context(), "admin.failed", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func nonNil(logs []model.SessionLog) []model.SessionLog {
	if logs == nil {
		return []model.SessionLog{}
	}
	return logs
}
