package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"epoch/internal/model"
	"epoch/internal/report"
	"epoch/internal/store"

	"github.com/spf13/cobra"
)

func newSessionCmd(rt *runtime) *cobra.Command {
	var name, from, to string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "List a user's session logs",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			user, err := rt.store.UserByName(cmd.Context(), name)
			if err != nil {
				return userErr(name, err)
			}
			start, end, err := report.ParseRange(from, to, rt.now())
			if err != nil {
				return err
			}
			logs, err := rt.store.ListSessionLogs(cmd.Context(), user.ID, start, end)
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				rt.printf("No session information for %s between %s and %s\n", user.Username, day(start), day(end.AddDate(0, 0, -1)))
				return nil
			}
			rt.printf("%s\n\n", headerStyle.Render(fmt.Sprintf("Session info for %s between %s and %s:", user.Username, day(start), day(end.AddDate(0, 0, -1)))))
			for _, l := range logs {
				approved := mutedStyle.Render("Approved=false")
				if l.Verified() {
					approved = okStyle.Render("Approved=" + *l.ApprovedBy)
				}
				rt.printf("Log ID #%d shows %s hours of work starting on %s. [%s]\n",
					l.ID, report.Hours(l.Hours()), l.Start.UTC().Format(time.DateTime), approved)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "user", "", "user name")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: start of this month)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: end of this month)")
	return cmd
}

func newAddCmd(rt *runtime) *cobra.Command {
	var as, name, date, hours string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Backfill a verified session log",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			verifier, user, err := rt.pair(ctx, as, name)
			if err != nil {
				return err
			}
			d, err := report.ParseDay(date)
			if err != nil {
				return err
			}
			ms, err := parseHours(hours)
			if err != nil {
				return err
			}
			l := &model.SessionLog{UserID: user.ID, WorkTime: ms, Start: d, End: d, ApprovedBy: &verifier.ID}
			if err := rt.store.AppendSessionLog(ctx, l); err != nil {
				return err
			}
			rt.printf("Successfully added %s hours to %s's session log for %s (log #%d)\n", hours, user.Username, day(d), l.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&as, "as", "", "your user name, recorded as the approver")
	cmd.Flags().StringVar(&name, "user", "", "user to add the log for")
	cmd.Flags().StringVar(&date, "date", "", "day of the session, YYYY-MM-DD")
	cmd.Flags().StringVar(&hours, "hours", "", "worked hours, e.g. 2.5")
	return cmd
}

func newRemoveCmd(rt *runtime) *cobra.Command {
	var (
		name, date string
		id         int64
	)
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete one session log by day or id",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := rt.store.UserByName(ctx, name)
			if err != nil {
				return userErr(name, err)
			}
			if err := oneTarget(date, id); err != nil {
				return err
			}
			if id != 0 {
				if err := rt.owned(ctx, user, id); err != nil {
					return err
				}
				if err := rt.store.DeleteSessionLog(ctx, id); err != nil {
					return logErr(err)
				}
			} else {
				d, err := report.ParseDay(date)
				if err != nil {
					return err
				}
				if id, err = rt.store.DeleteSessionLogByDay(ctx, user.ID, d); err != nil {
					return logErr(err)
				}
			}
			rt.printf("Successfully deleted %s's session log #%d\n", user.Username, id)
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "user", "", "user name")
	cmd.Flags().StringVar(&date, "date", "", "day of the log, YYYY-MM-DD")
	cmd.Flags().Int64Var(&id, "id", 0, "log id")
	return cmd
}

func newModifyCmd(rt *runtime) *cobra.Command {
	var (
		as, name, date, hours string
		id                    int64
	)
	cmd := &cobra.Command{
		Use:   "modify",
		Short: "Rewrite the hours of one session log and sign it",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			verifier, user, err := rt.pair(ctx, as, name)
			if err != nil {
				return err
			}
			if err := oneTarget(date, id); err != nil {
				return err
			}
			ms, err := parseHours(hours)
			if err != nil {
				return err
			}
			if id != 0 {
				if err := rt.owned(ctx, user, id); err != nil {
					return err
				}
				if err := rt.store.UpdateSessionLog(ctx, id, ms, verifier.ID); err != nil {
					return logErr(err)
				}
			} else {
				d, err := report.ParseDay(date)
				if err != nil {
					return err
				}
				if id, err = rt.store.UpdateSessionLogByDay(ctx, user.ID, d, ms, verifier.ID); err != nil {
					return logErr(err)
				}
			}
			rt.printf("Successfully modified %s's session log #%d and set their worked hours to %s hours.\n", user.Username, id, hours)
			return nil
		}),
	}
	cmd.Flags().StringVar(&as, "as", "", "your user name, recorded as the approver")
	cmd.Flags().StringVar(&name, "user", "", "user name")
	cmd.Flags().StringVar(&date, "date", "", "day of the log, YYYY-MM-DD")
	cmd.Flags().Int64Var(&id, "id", 0, "log id")
	cmd.Flags().StringVar(&hours, "hours", "", "worked hours, e.g. 2.5")
	return cmd
}

// pair resolves the operator and the target user by name.
func (rt *runtime) pair(ctx context.Context, as, name string) (*model.User, *model.User, error) {
	if as == "" {
		return nil, nil, errors.New("--as is required to sign session logs")
	}
	verifier, err := rt.store.UserByName(ctx, as)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("unable to find your name %s", as)
		}
		return nil, nil, err
	}
	user, err := rt.store.UserByName(ctx, name)
	if err != nil {
		return nil, nil, userErr(name, err)
	}
	return verifier, user, nil
}

func (rt *runtime) owned(ctx context.Context, user *model.User, id int64) error {
	l, err := rt.store.SessionLog(ctx, id)
	if err != nil {
		return logErr(err)
	}
	if l.UserID != user.ID {
		return fmt.Errorf("session log #%d does not belong to %s", id, user.Username)
	}
	return nil
}

func oneTarget(date string, id int64) error {
	if (date == "") == (id == 0) {
		return errors.New("exactly one of --date or --id is required")
	}
	return nil
}

func parseHours(s string) (int64, error) {
	h, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || h < 0 || math.IsInf(h, 0) || math.IsNaN(h) {
		return 0, fmt.Errorf("invalid hours %q, expected a number such as 2.5", s)
	}
	return int64(math.Round(h * 3600000)), nil
}

func userErr(name string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("unable to find %q, are you sure they exist?", name)
	}
	return err
}

func logErr(err error) error {
	var amb *store.AmbiguousError
	switch {
	case errors.As(err, &amb):
		ids := make([]string, len(amb.IDs))
		for i, id := range amb.IDs {
			ids[i] = "#" + strconv.FormatInt(id, 10)
		}
		return fmt.Errorf("more than one session log that day (%s), pick one with --id", strings.Join(ids, ", "))
	case errors.Is(err, store.ErrNotFound):
		return errors.New("no such session log")
	default:
		return err
	}
}

func day(t time.Time) string { return t.UTC().Format(time.DateOnly) }
