package commands

import (
	"time"

	"epoch/internal/report"
	"epoch/internal/verify"

	"github.com/spf13/cobra"
)

func newVerifyCmd(rt *runtime) *cobra.Command {
	var (
		as, name, from, to string
		ids                []int64
		all                bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Review and sign a user's unverified session logs",
		Long: `verify lists the user's unverified session logs in the range and signs them
with your name. Pass --ids or --all to sign without prompting; otherwise enter
one log id per line and an empty line to finish.`,
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			verifier, user, err := rt.pair(ctx, as, name)
			if err != nil {
				return err
			}
			start, end, err := report.ParseRange(from, to, rt.now())
			if err != nil {
				return err
			}
			p, err := rt.verify.Open(ctx, verifier.ID, user.ID, start, end)
			if err != nil {
				return err
			}
			if p.Len() == 0 {
				rt.printf("%s has no unverified session logs between %s and %s\n", user.Username, day(start), day(end.AddDate(0, 0, -1)))
				return nil
			}
			rt.printf("%s\n", headerStyle.Render("Unverified session logs for "+user.Username+":"))
			for _, l := range p.Logs() {
				rt.printf("Log ID #%d shows %s hours of work starting on %s.\n", l.ID, report.Hours(l.Hours()), l.Start.UTC().Format(time.DateTime))
			}

			switch {
			case all:
				signed, err := p.SignAll(ctx)
				rt.printf("Signed %d session logs.\n", len(signed))
				return err
			case len(ids) > 0:
				signed, unknown, err := p.SignIDs(ctx, ids)
				for _, id := range unknown {
					rt.printf("%s\n", errStyle.Render((&verify.UnknownTransactionError{ID: id}).Error()))
				}
				rt.printf("Signed %d session logs.\n", len(signed))
				return err
			}

			if err := rt.runSignPrompt(ctx, p); err != nil {
				return err
			}
			rt.printf("%d session logs remain unverified.\n", p.Len())
			return nil
		}),
	}
	cmd.Flags().StringVar(&as, "as", "", "your user name, recorded as the approver")
	cmd.Flags().StringVar(&name, "user", "", "user whose logs to verify")
	cmd.Flags().StringVar(&from, "from", "", "first day, YYYY-MM-DD (default: start of this month)")
	cmd.Flags().StringVar(&to, "to", "", "last day, YYYY-MM-DD (default: end of this month)")
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "log ids to sign, e.g. 4,7")
	cmd.Flags().BoolVar(&all, "all", false, "sign every listed log")
	return cmd
}
