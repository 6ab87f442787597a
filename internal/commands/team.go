package commands

import (
	"errors"

	"epoch/internal/model"

	"github.com/spf13/cobra"
)

func newTeamCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams",
	}

	var (
		id   int
		name string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			if id <= 0 || name == "" {
				return errors.New("--id and --name are required")
			}
			if err := rt.store.CreateTeam(cmd.Context(), &model.Team{ID: id, Name: name}); err != nil {
				return err
			}
			rt.printf("Created team #%d %s\n", id, name)
			return nil
		}),
	}
	create.Flags().IntVar(&id, "id", 0, "team id")
	create.Flags().StringVar(&name, "name", "", "team name")

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List teams",
		RunE: rt.withDB(func(cmd *cobra.Command, args []string) error {
			teams, err := rt.store.Teams(cmd.Context())
			if err != nil {
				return err
			}
			if len(teams) == 0 {
				rt.printf("No teams yet. Use 'epochctl team create --id 1 --name core'.\n")
				return nil
			}
			rt.printf("%s\n", headerStyle.Render("ID   NAME"))
			for _, t := range teams {
				rt.printf("%-4d %s\n", t.ID, t.Name)
			}
			return nil
		}),
	}

	cmd.AddCommand(create, list)
	return cmd
}
