package commands

import (
	"errors"

	"epoch/internal/model"
	"epoch/internal/store"

	"github.com/spf13/cobra"
)

func newUserCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var u model.User
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		Long: `Register a user by their Slack id. The user starts OFFLINE with an empty
session; --git and --bitbucket-email attribute pushed commits to them.`,
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			if u.ID == "" || u.Username == "" {
				return errors.New("--id and --name are required")
			}
			if u.MonthlyHours <= 0 {
				u.MonthlyHours = store.DefaultMonthlyHours
			}
			if err := rt.store.CreateUser(cmd.Context(), &u); err != nil {
				return err
			}
			rt.printf("Created %s (%s) with a goal of %d hours a month\n", u.Username, u.ID, u.MonthlyHours)
			return nil
		}),
	}
	create.Flags().StringVar(&u.ID, "id", "", "Slack user id")
	create.Flags().StringVar(&u.Username, "name", "", "display name")
	create.Flags().StringVar(&u.Title, "title", "", "job title")
	create.Flags().IntVar(&u.TeamID, "team", 0, "team id")
	create.Flags().StringVar(&u.GitID, "git", "", "GitHub or GitLab login")
	create.Flags().StringVar(&u.BitbucketEmail, "bitbucket-email", "", "Bitbucket committer email")
	create.Flags().IntVar(&u.MonthlyHours, "monthly-hours", store.DefaultMonthlyHours, "monthly goal in hours")

	var (
		name string
		team int
	)
	setTeam := &cobra.Command{
		Use:   "team",
		Short: "Move a user to another team",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			user, err := rt.store.UserByName(cmd.Context(), name)
			if err != nil {
				return userErr(name, err)
			}
			if err := rt.store.SetUserTeam(cmd.Context(), user.ID, team); err != nil {
				return err
			}
			rt.printf("%s is now on team #%d\n", user.Username, team)
			return nil
		}),
	}
	setTeam.Flags().StringVar(&name, "name", "", "user name")
	setTeam.Flags().IntVar(&team, "team", 0, "team id")

	cmd.AddCommand(create, setTeam)
	return cmd
}
