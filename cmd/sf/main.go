package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shopfloor/internal/app"
	"shopfloor/internal/config"
	"shopfloor/internal/db"
	"shopfloor/internal/domain"
	"shopfloor/internal/engine"
	"shopfloor/internal/migrate"
	"shopfloor/internal/repo"
	"shopfloor/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sf",
	Short: "Shopfloor CLI",
	Long: `Shopfloor tracks attendance and work sessions on a production floor.
Core concepts:
- Workspace: your .shopfloor directory holding the database; the site config lives in the DB.
- Shifts: one per worker per day. A badge scan at an entrance or exit point clocks in or out; lunch scans drive the lunch state.
- Sessions: a work log binds one worker to one task with pauses and produced/defect counts.
- Efficiency: produced quantity against the machine norm times net worked hours.
- Event log: diary of changes, view with 'sf log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SHOPFLOOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("site", "", "site id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("site", rootCmd.PersistentFlags().Lookup("site"))
}

func registerCommands() {
	rootCmd.AddCommand(shiftCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(lunchCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(machineCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(pointCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func shiftCmd() *cobra.Command {
	shift := &cobra.Command{Use: "shift", Short: "Manage shifts"}
	shift.AddCommand(shiftPlanCmd())
	shift.AddCommand(shiftCancelCmd())
	shift.AddCommand(shiftTodayCmd())
	shift.AddCommand(shiftShowCmd())
	shift.AddCommand(shiftListCmd())
	return shift
}

func shiftPlanCmd() *cobra.Command {
	var actorID, date, plannedStart string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a shift",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				var start *time.Time
				if plannedStart != "" {
					t, err := time.Parse(time.RFC3339, plannedStart)
					if err != nil {
						return fmt.Errorf("invalid --planned-start: %w", err)
					}
					utc := t.UTC()
					start = &utc
				}
				s, err := e.PlanShift(ctx, actorID, date, start)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker id")
	cmd.Flags().StringVar(&date, "date", "", "shift date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&plannedStart, "planned-start", "", "planned start (RFC3339)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func shiftCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <shift-id>",
		Short: "Cancel a planned shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.CancelPlannedShift(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func shiftTodayCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's shift for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				s, err := e.TodayShift(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker id")
	return cmd
}

func shiftShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <shift-id>",
		Short: "Show a shift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.GetShift(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func shiftListCmd() *cobra.Command {
	var actorID, dateFrom, dateTo string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List shifts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				shifts, err := e.ListShiftsForWindow(ctx, actorID, dateFrom, dateTo)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(shifts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Date", "In", "Out", "Lunch", "Late"})
				for _, s := range shifts {
					tw.AppendRow(table.Row{s.ID, s.ActorID, s.Date, fmtClock(s.TimeIn), fmtClock(s.TimeOut), s.LunchState, s.IsLate})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker filter")
	cmd.Flags().StringVar(&dateFrom, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "to", "", "end date (YYYY-MM-DD)")
	return cmd
}

func scanCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "scan <token>",
		Short: "Record a badge scan",
		Long:  "Resolves the token against the point registry and applies the transition it implies: clock in, clock out, or a lunch toggle.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				shift, point, err := e.ScanToken(ctx, actorID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"point": point, "shift": shift})
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker id")
	return cmd
}

func lunchCmd() *cobra.Command {
	lunch := &cobra.Command{Use: "lunch", Short: "Lunch transitions"}
	lunch.AddCommand(lunchActionCmd("start", "Start lunch", engine.Engine.StartLunch))
	lunch.AddCommand(lunchActionCmd("end", "End lunch", engine.Engine.EndLunch))
	lunch.AddCommand(lunchActionCmd("skip", "Mark lunch skipped", func(e engine.Engine, ctx context.Context, actorID string, _ time.Time) (domain.Shift, error) {
		return e.MarkNoLunch(ctx, actorID)
	}))
	return lunch
}

func lunchActionCmd(use, short string, apply func(engine.Engine, context.Context, string, time.Time) (domain.Shift, error)) *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				s, err := apply(e, ctx, actorID, time.Now().UTC())
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker id")
	return cmd
}

func sessionCmd() *cobra.Command {
	session := &cobra.Command{Use: "session", Short: "Manage work sessions"}
	session.AddCommand(sessionStartCmd())
	session.AddCommand(sessionPauseCmd())
	session.AddCommand(sessionResumeCmd())
	session.AddCommand(sessionEndCmd())
	session.AddCommand(sessionCurrentCmd())
	session.AddCommand(sessionShowCmd())
	return session
}

func sessionStartCmd() *cobra.Command {
	var actorID, taskID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a work session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				wl, err := e.StartSession(ctx, actorID, taskID, time.Now().UTC())
				if err != nil {
					return err
				}
				return printJSONOrTable(wl)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker id")
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func sessionPauseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pause <work-log-id>",
		Short: "Pause a work session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wl, err := e.PauseSession(ctx, args[0], time.Now().UTC())
				if err != nil {
					return err
				}
				return printJSONOrTable(wl)
			})
		},
	}
	return cmd
}

func sessionResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <work-log-id>",
		Short: "Resume a paused work session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wl, err := e.ResumeSession(ctx, args[0], time.Now().UTC())
				if err != nil {
					return err
				}
				return printJSONOrTable(wl)
			})
		},
	}
	return cmd
}

func sessionEndCmd() *cobra.Command {
	var produced, defects int
	cmd := &cobra.Command{
		Use:   "end <work-log-id>",
		Short: "End a work session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wl, err := e.EndSession(ctx, args[0], time.Now().UTC(), produced, defects)
				if err != nil {
					return err
				}
				return printJSONOrTable(wl)
			})
		},
	}
	cmd.Flags().IntVar(&produced, "produced", 0, "quantity produced")
	cmd.Flags().IntVar(&defects, "defects", 0, "defect quantity")
	return cmd
}

func sessionCurrentCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the actor's open session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				wl, err := e.GetOpenSession(ctx, actorID)
				if err != nil {
					return err
				}
				if wl == nil {
					fmt.Println("no open session")
					return nil
				}
				return printJSONOrTable(wl)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "worker id")
	return cmd
}

func sessionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <work-log-id>",
		Short: "Show a work session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				wl, err := e.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(wl)
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	report := &cobra.Command{Use: "report", Short: "Efficiency and production reports"}
	report.AddCommand(reportActorCmd())
	report.AddCommand(reportTaskCmd())
	report.AddCommand(reportProductionCmd())
	return report
}

func reportActorCmd() *cobra.Command {
	var windowStart, windowEnd string
	cmd := &cobra.Command{
		Use:   "actor <actor-id>",
		Short: "Actor efficiency over a window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				start, err := time.Parse(time.RFC3339, windowStart)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				end, err := time.Parse(time.RFC3339, windowEnd)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				snap, err := e.ActorEfficiency(ctx, args[0], start.UTC(), end.UTC())
				if err != nil {
					return err
				}
				return printJSONOrTable(snap)
			})
		},
	}
	cmd.Flags().StringVar(&windowStart, "from", "", "window start (RFC3339)")
	cmd.Flags().StringVar(&windowEnd, "to", "", "window end (RFC3339)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func reportTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task <task-id>",
		Short: "Per-actor contributions to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tc, err := e.TaskContribution(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tc)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Actor", "Produced", "Defects", "Net hours", "Expected", "Eff %"})
				for _, c := range tc.Contributions {
					tw.AppendRow(table.Row{c.ActorID, c.QuantityProduced, c.DefectQuantity, fmt.Sprintf("%.2f", c.NetWorkedHours), fmt.Sprintf("%.1f", c.Expected), c.EfficiencyPct})
				}
				tw.Render()
				fmt.Printf("task %s: %d/%d completed\n", tc.TaskID, tc.CompletedQuantity, tc.TotalQuantity)
				return nil
			})
		},
	}
	return cmd
}

func reportProductionCmd() *cobra.Command {
	var startDate, endDate string
	cmd := &cobra.Command{
		Use:   "production",
		Short: "Production statistics over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.ProductionStatistics(ctx, startDate, endDate)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Day", "Produced", "Defects", "Eff %", "Defect %", "Sessions"})
				for _, b := range stats.Daily {
					tw.AppendRow(table.Row{b.Key, b.TotalActual, b.TotalDefects, b.EfficiencyPct, b.DefectRatePct, b.SessionCount})
				}
				tw.AppendFooter(table.Row{"overall", stats.Overall.TotalActual, stats.Overall.TotalDefects, stats.Overall.EfficiencyPct, stats.Overall.DefectRatePct, stats.Overall.SessionCount})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&startDate, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "to", "", "end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func machineCmd() *cobra.Command {
	machine := &cobra.Command{Use: "machine", Short: "Manage machines"}
	machine.AddCommand(machineCreateCmd())
	machine.AddCommand(machineListCmd())
	return machine
}

func machineCreateCmd() *cobra.Command {
	var name string
	var norm float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMachine(ctx, name, norm, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "machine name")
	cmd.Flags().Float64Var(&norm, "norm", 0, "efficiency norm per hour")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("norm")
	return cmd
}

func machineListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				machines, err := r.ListMachines(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(machines)
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage production tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var machineID, name string
	var total int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, machineID, name, total, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&machineID, "machine", "", "machine id")
	cmd.Flags().StringVar(&name, "name", "", "task name")
	cmd.Flags().IntVar(&total, "total", 0, "total quantity to produce")
	_ = cmd.MarkFlagRequired("machine")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Machine", "Name", "Done", "Total", "Defects"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.MachineID, t.Name, t.CompletedQuantity, t.TotalQuantity, t.DefectQuantity})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func pointCmd() *cobra.Command {
	point := &cobra.Command{Use: "point", Short: "Manage scan points"}
	point.AddCommand(pointRegisterCmd())
	point.AddCommand(pointListCmd())
	return point
}

func pointRegisterCmd() *cobra.Command {
	var token, pointType, label string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a scan point",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.RegisterQRPoint(ctx, token, domain.QRPointType(pointType), label, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "opaque token (generated when omitted)")
	cmd.Flags().StringVar(&pointType, "type", "", "point type: entrance, exit, break_area or lunch")
	cmd.Flags().StringVar(&label, "label", "", "human-readable label")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func pointListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scan points",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				points, err := r.ListQRPoints(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(points)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Site configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective site configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	})
	cfg.AddCommand(configImportCmd())
	return cfg
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a site configuration from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			c, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertSiteConfig(ctx, c.Site.ID, c); err != nil {
					return err
				}
				fmt.Printf("imported config for site %s\n", c.Site.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: scans, shift transitions, sessions, and admin changes.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveSiteAndConfig(cmd.Context(), viper.GetString("site"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SHOPFLOOR_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SHOPFLOOR_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Shopfloor API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveSiteAndConfig(ctx, viper.GetString("site"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtClock(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("15:04")
}
