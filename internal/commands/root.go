package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"epoch/internal/config"
	"epoch/internal/logger"
	"epoch/internal/notify"
	"epoch/internal/report"
	"epoch/internal/session"
	"epoch/internal/store"
	"epoch/internal/verify"

	"github.com/spf13/cobra"
)

// runtime carries what every command needs. The store is opened lazily so
// that help and flag errors never touch the database.
type runtime struct {
	configFile string

	cfg     *config.Config
	store   *store.Store
	sink    notify.Sink
	machine *session.Machine
	verify  *verify.Workflow
	brand   report.Branding

	out io.Writer
	in  io.Reader
	now func() time.Time
}

func newRuntime() *runtime {
	return &runtime{out: os.Stdout, in: os.Stdin, now: time.Now}
}

func (rt *runtime) init() error {
	if rt.store != nil {
		return nil
	}
	if rt.cfg == nil {
		rt.cfg = config.Load(rt.configFile)
		if rt.cfg.Log.File != "" {
			rt.cfg.Log.Console = false
		} else {
			rt.cfg.Log.Level = "warn"
		}
		logger.Init(rt.cfg.Log)
	}
	db, err := rt.cfg.OpenGormDB()
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	rt.use(st, notify.NewSlack(rt.cfg.Slack))
	return nil
}

// use wires the collaborators around an open store.
func (rt *runtime) use(st *store.Store, sink notify.Sink) {
	if rt.cfg == nil {
		rt.cfg = config.Default()
	}
	rt.store = st
	rt.sink = sink
	rt.machine = session.NewMachine(st, sink, rt.cfg.Slack, session.WithClock(rt.now))
	rt.verify = verify.NewWorkflow(st, rt.cfg.Admin.VerifySecret, verify.WithClock(rt.now))
	rt.brand = report.BrandingFrom(rt.cfg.Slack)
}

func (rt *runtime) printf(format string, args ...any) {
	fmt.Fprintf(rt.out, format, args...)
}

// withDB wraps a command function to open the database first
func (rt *runtime) withDB(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := rt.init(); err != nil {
			return err
		}
		return fn(cmd, args)
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "epochctl",
		Short: "Administer the Epoch time tracker",
		Long: `epochctl manages Epoch teams and users, corrects and verifies session logs,
and produces monthly reports from the terminal.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&rt.configFile, "config", "", "config file path (e.g. etc/config-dev.yaml)")

	root.AddCommand(
		newTeamCmd(rt),
		newUserCmd(rt),
		newListCmd(rt),
		newSessionCmd(rt),
		newAddCmd(rt),
		newRemoveCmd(rt),
		newModifyCmd(rt),
		newVerifyCmd(rt),
		newReportCmd(rt),
		newForceLogoutCmd(rt),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return newRootCmd(newRuntime()).Execute()
}
