package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"epoch/internal/config"
	"epoch/internal/logger"
	"epoch/internal/model"
	"epoch/internal/report"
	"epoch/internal/session"
	"epoch/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
)

const usageText = "Unknown command! Try /epoch [start|stop|pause|resume|info|status]"

type SlackHandler struct {
	machine *session.Machine
	brand   report.Branding
	token   string
}

func NewSlackHandler(m *session.Machine, cfg config.SlackConfig) *SlackHandler {
	return &SlackHandler{machine: m, brand: report.BrandingFrom(cfg), token: cfg.VerificationToken}
}

// POST /services/slack
func (h *SlackHandler) Command(c *gin.Context) {
	cmd, err := slack.SlashCommandParse(c.Request)
	if err != nil {
		c.String(http.StatusBadRequest, "Malformed request.")
		return
	}
	if h.token == "" || !cmd.ValidateToken(h.token) {
		logger.WarnContext(c.Request.Context(), "slack.unauthorized", "team", cmd.TeamDomain, "user", cmd.UserID)
		c.String(http.StatusNotFound, "You are not authorized.")
		return
	}

	verb := ""
	if fields := strings.Fields(cmd.Text); len(fields) > 0 {
		verb = strings.ToUpper(fields[0])
	}
	ctx := c.Request.Context()
	logger.InfoContext(ctx, "slack.command", "user", cmd.UserID, "command", verb)

	var (
		msg *slack.Msg
		res *session.Result
	)
	switch verb {
	case "START":
		if res, err = h.machine.Start(ctx, cmd.UserID); err == nil {
			msg = h.loginMessage(res)
		}
	case "STOP":
		if res, err = h.machine.Stop(ctx, cmd.UserID); err == nil {
			msg = h.logoutMessage(res)
		}
	case "PAUSE":
		if _, err = h.machine.Pause(ctx, cmd.UserID); err == nil {
			msg = h.simple("warning", "You have paused your session. Enjoy your break! Resume with /epoch resume.")
		}
	case "RESUME":
		if _, err = h.machine.Resume(ctx, cmd.UserID); err == nil {
			msg = h.simple("good", "You have resumed your session. Welcome back!")
		}
	case "INFO":
		var snap *session.Snapshot
		if snap, err = h.machine.Snapshot(ctx, cmd.UserID); err == nil {
			msg = h.infoMessage(snap)
		}
	case "STATUS":
		var snaps []session.Snapshot
		if snaps, err = h.machine.Snapshots(ctx); err == nil {
			msg = h.statusMessage(snaps)
		}
	default:
		msg = &slack.Msg{Text: usageText}
	}

	if err != nil {
		msg = h.errorMessage(ctx, cmd.UserID, verb, err)
	}
	msg.ResponseType = slack.ResponseTypeEphemeral
	c.JSON(http.StatusOK, msg)
}

func (h *SlackHandler) errorMessage(ctx context.Context, userID, verb string, err error) *slack.Msg {
	var te *session.TransitionError
	switch {
	case errors.As(err, &te):
		return &slack.Msg{Text: te.Error()}
	case errors.Is(err, store.ErrNotFound):
		return &slack.Msg{Text: "Your user does not exist!"}
	default:
		logger.ErrorContext(ctx, "slack.command_failed", "user", userID, "command", verb, "err", err)
		return &slack.Msg{Text: "Epoch could not process your command right now. Please try again."}
	}
}

func (h *SlackHandler) attachment(color, text string) slack.Attachment {
	return slack.Attachment{
		Title:     h.brand.CompanyName,
		TitleLink: h.brand.CompanyURL,
		Color:     color,
		Text:      text,
	}
}

func (h *SlackHandler) wrap(a slack.Attachment) *slack.Msg {
	h.brand.Footer(&a, timeNow())
	return &slack.Msg{Attachments: []slack.Attachment{a}}
}

func (h *SlackHandler) simple(color, text string) *slack.Msg {
	return h.wrap(h.attachment(color, text))
}

func (h *SlackHandler) loginMessage(res *session.Result) *slack.Msg {
	a := h.attachment("good", "You have started a new Epoch session. You are now ONLINE.")
	a.Fields = []slack.AttachmentField{
		report.Field("Goal Hours (today)", res.Goal.String()),
		report.Field("Total Hours (month)", report.Hours(res.MonthHours)),
	}
	return h.wrap(a)
}

func (h *SlackHandler) logoutMessage(res *session.Result) *slack.Msg {
	a := h.attachment("danger", "You are now logged out of Epoch, changing your state to OFFLINE.")
	a.Fields = []slack.AttachmentField{
		report.Field("Total Hours (month)", report.Hours(res.MonthHours)),
		report.Field("Goal Hours (month)", fmt.Sprint(res.User.MonthlyHours)),
	}
	return h.wrap(a)
}

func (h *SlackHandler) infoMessage(s *session.Snapshot) *slack.Msg {
	a := h.attachment(stateColor(s.State), fmt.Sprintf("Your current state is %s.", s.State))
	switch s.State {
	case model.StateOnline, model.StatePaused:
		a.Fields = []slack.AttachmentField{
			report.Field("Worked Time (session)", report.Hours(s.SessionHours())),
			report.Field("Total Hours (month)", report.Hours(s.MonthHours)),
		}
	case model.StateOffline:
		a.Fields = []slack.AttachmentField{
			report.Field("Total Hours (month)", report.Hours(s.MonthHours)),
			report.Field("Goal Hours (month)", fmt.Sprint(s.User.MonthlyHours)),
		}
	}
	return h.wrap(a)
}

func (h *SlackHandler) statusMessage(snaps []session.Snapshot) *slack.Msg {
	msg := &slack.Msg{}
	if len(snaps) == 0 {
		msg.Text = "No users are registered with Epoch yet."
		return msg
	}
	for _, s := range snaps {
		a := slack.Attachment{
			Title:     s.User.Username,
			TitleLink: h.brand.CompanyURL,
			Color:     stateColor(s.State),
			Fields: []slack.AttachmentField{
				report.Field("Total Hours (month)", report.Hours(s.MonthHours)),
				report.Field("Goal Hours (month)", fmt.Sprint(s.User.MonthlyHours)),
			},
		}
		h.brand.Footer(&a, s.StartedAt)
		msg.Attachments = append(msg.Attachments, a)
	}
	return msg
}

func stateColor(st model.State) string {
	switch st {
	case model.StateOnline:
		return "good"
	case model.StatePaused:
		return "warning"
	case model.StateOffline:
		return "danger"
	default:
		return ""
	}
}
