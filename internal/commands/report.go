package commands

import (
	"fmt"
	"os"

	"epoch/internal/report"

	"github.com/spf13/cobra"
)

func newReportCmd(rt *runtime) *cobra.Command {
	var (
		name, from, to, xlsx string
		send                 bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize verified and unverified hours against the monthly goal",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := rt.store.UserByName(ctx, name)
			if err != nil {
				return userErr(name, err)
			}
			start, end, err := report.ParseRange(from, to, rt.now())
			if err != nil {
				return err
			}
			logs, err := rt.store.ListSessionLogs(ctx, user.ID, start, end)
			if err != nil {
				return err
			}
			// the period is shown with its inclusive last day
			p := report.NewPeriod(*user, logs, start, end.AddDate(0, 0, -1))
			if p.Empty() {
				rt.printf("No session information for %s between %s and %s\n", user.Username, day(p.From), day(p.To))
				return nil
			}
			rt.printf("%s", p.Text())

			if xlsx != "" {
				f, err := os.Create(xlsx)
				if err != nil {
					return fmt.Errorf("create %s: %w", xlsx, err)
				}
				if err := p.WriteXLSX(f); err != nil {
					f.Close()
					return fmt.Errorf("write %s: %w", xlsx, err)
				}
				if err := f.Close(); err != nil {
					return err
				}
				rt.printf("Wrote %s\n", xlsx)
			}
			if send {
				rt.sink.Post(ctx, p.Message(rt.brand, rt.now()))
				rt.printf("Sent the report to %s\n", user.Username)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&name, "user", "", "user name")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: start of this month)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: end of this month)")
	cmd.Flags().BoolVar(&send, "send", false, "direct message the report to the user")
	cmd.Flags().StringVar(&xlsx, "xlsx", "", "also export the logs to this workbook")
	return cmd
}

func newForceLogoutCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "force-logout",
		Short: "Log out every ONLINE or PAUSED user, as after a restart",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			results, err := rt.machine.ForceLogoutAll(cmd.Context())
			for _, r := range results {
				rt.printf("Logged out %s after %s hours\n", r.User.Username, report.Hours(r.WorkedHours))
			}
			if len(results) == 0 && err == nil {
				rt.printf("Nobody was logged in.\n")
			}
			return err
		}),
	}
}
