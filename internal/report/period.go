package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"epoch/internal/model"

	"github.com/slack-go/slack"
	"github.com/xuri/excelize/v2"
)

const dateLayout = "2006-01-02"

// Period totals a user's session logs over [From, To].
type Period struct {
	User            model.User
	From, To        time.Time
	Verified        []model.SessionLog
	Unverified      []model.SessionLog
	VerifiedHours   float64
	UnverifiedHours float64
	GoalHours       int
}

func NewPeriod(user model.User, logs []model.SessionLog, from, to time.Time) *Period {
	p := &Period{User: user, From: from, To: to, GoalHours: user.MonthlyHours}
	for _, l := range logs {
		if l.Verified() {
			p.Verified = append(p.Verified, l)
			p.VerifiedHours += l.Hours()
		} else {
			p.Unverified = append(p.Unverified, l)
			p.UnverifiedHours += l.Hours()
		}
	}
	return p
}

func (p *Period) Empty() bool { return len(p.Verified)+len(p.Unverified) == 0 }

// Shortfall is how many verified hours are missing from the goal, never
// negative.
func (p *Period) Shortfall() float64 {
	if d := float64(p.GoalHours) - p.VerifiedHours; d > 0 {
		return d
	}
	return 0
}

func (p *Period) Reached() bool { return p.Shortfall() == 0 }

func (p *Period) Text() string {
	var sb strings.Builder
	name := p.User.Username
	fmt.Fprintf(&sb, "User report for %s between %s and %s:\n\n", name, p.From.Format(dateLayout), p.To.Format(dateLayout))
	fmt.Fprintf(&sb, "%d transactions were NOT VERIFIED totalling %s hours.\n", len(p.Unverified), Hours(p.UnverifiedHours))
	fmt.Fprintf(&sb, "%d transactions were VERIFIED totalling %s hours.\n\n", len(p.Verified), Hours(p.VerifiedHours))
	fmt.Fprintf(&sb, "The monthly goal hours for %s is %d\n", name, p.GoalHours)
	if p.Reached() {
		fmt.Fprintf(&sb, "%s has reached their monthly goal!\n", name)
	} else {
		fmt.Fprintf(&sb, "%s was %s hours short of their goal!\n", name, Hours(p.Shortfall()))
	}
	return sb.String()
}

// Message is the direct message that delivers the report to its user.
func (p *Period) Message(b Branding, now time.Time) *slack.WebhookMessage {
	pretext := fmt.Sprintf("Greetings, %s. Here is your monthly report.", p.User.Username)
	if p.UnverifiedHours > 0 {
		pretext = fmt.Sprintf("Greetings, %s. Here is your monthly report, minus %s hours that were not verified.",
			p.User.Username, Hours(p.UnverifiedHours))
	}
	a := slack.Attachment{
		Color:     SessionColor,
		Title:     p.User.Username,
		TitleLink: b.CompanyURL,
		Pretext:   pretext,
		Text:      fmt.Sprintf("Report from %s to %s", p.From.Format("Jan 02, 2006"), p.To.Format("Jan 02, 2006")),
		Fields: []slack.AttachmentField{
			Field("Verified Hours", Hours(p.VerifiedHours)),
			Field("Goal Hours", fmt.Sprint(p.GoalHours)),
		},
	}
	b.Footer(&a, now)
	return &slack.WebhookMessage{
		Channel:     p.User.ID,
		Username:    b.BotName,
		IconEmoji:   ":bar_chart:",
		Attachments: []slack.Attachment{a},
	}
}

// WriteXLSX exports the period as a workbook with a summary sheet and one
// row per session log.
func (p *Period) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	const summary, sessions = "Summary", "Sessions"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	rows := [][]any{
		{"User", p.User.Username},
		{"From", p.From.Format(dateLayout)},
		{"To", p.To.Format(dateLayout)},
		{"Verified Hours", round2(p.VerifiedHours)},
		{"Unverified Hours", round2(p.UnverifiedHours)},
		{"Goal Hours", p.GoalHours},
		{"Shortfall", round2(p.Shortfall())},
	}
	for i, row := range rows {
		if err := setRow(f, summary, i+1, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sessions); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	if err := setRow(f, sessions, 1, []any{"ID", "Start", "End", "Hours", "Approved By"}); err != nil {
		return err
	}
	r := 2
	for _, group := range [][]model.SessionLog{p.Verified, p.Unverified} {
		for _, l := range group {
			approved := ""
			if l.ApprovedBy != nil {
				approved = *l.ApprovedBy
			}
			row := []any{l.ID, l.Start.UTC().Format(time.DateTime), l.End.UTC().Format(time.DateTime), round2(l.Hours()), approved}
			if err := setRow(f, sessions, r, row); err != nil {
				return err
			}
			r++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
	return nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
