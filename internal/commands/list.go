package commands

import (
	"time"

	"epoch/internal/report"

	"github.com/spf13/cobra"
)

func newListCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show every user's state and monthly progress",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			snaps, err := rt.machine.Snapshots(cmd.Context())
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				rt.printf("No users yet. Use 'epochctl user create' to register one.\n")
				return nil
			}
			for _, s := range snaps {
				seen := "never"
				if !s.StartedAt.IsZero() {
					seen = s.StartedAt.UTC().Format(time.DateTime)
				}
				rt.printf("[%s][%s] was last seen at %s. They are at %s / %d hours.\n",
					s.User.Username, stateStyle(s.State).Render(string(s.State)), seen,
					report.Hours(s.MonthHours), s.User.MonthlyHours)
			}
			return nil
		}),
	}
}
