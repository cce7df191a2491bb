package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/appointment"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/config"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/db"
	"github.com/zaming3007/swp391-HIVSystem-sub004/internal/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schedctl",
		Short: "Operator tooling for the appointment scheduler",
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(availabilityCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type env struct {
	cfg    config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
}

func connect(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "schedctl")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, "schedctl")
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &env{cfg: cfg, logger: logger, pool: pool}, nil
}

func (e *env) service() *appointment.Service {
	repo := appointment.NewPgRepository(e.pool, e.cfg.Location)
	return appointment.NewService(repo, repo, nil, nil, e.cfg, e.logger)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.pool.Close()

			applied, err := db.Migrate(cmd.Context(), e.pool)
			if err != nil {
				return err
			}
			e.logger.Info().Int("applied", applied).Msg("migrations up to date")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.pool.Close()

			all, err := db.LoadMigrations()
			if err != nil {
				return err
			}
			pending, err := db.Pending(cmd.Context(), e.pool)
			if err != nil {
				return err
			}
			isPending := make(map[int]bool, len(pending))
			for _, m := range pending {
				isPending[m.Version] = true
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
			for _, m := range all {
				state := "applied"
				if isPending[m.Version] {
					state = "pending"
				}
				fmt.Fprintf(tw, "%03d\t%s\t%s\n", m.Version, m.Name, state)
			}
			return tw.Flush()
		},
	})

	return cmd
}

func availabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print a doctor's slots over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := doctorFlag(cmd)
			if err != nil {
				return err
			}
			from, err := dateFlag(cmd, "from")
			if err != nil {
				return err
			}
			to, err := dateFlag(cmd, "to")
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.pool.Close()

			days, err := e.service().ResolveAvailability(cmd.Context(), doctorID, from, to)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(days)
			}
			return printDays(cmd, days)
		},
	}

	cmd.Flags().String("doctor", "", "doctor ID")
	cmd.Flags().String("from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	return cmd
}

func printDays(cmd *cobra.Command, days []appointment.DayAvailability) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tSLOT\tSTATE")
	for _, d := range days {
		date := d.Date.Format(appointment.DateLayout)
		if len(d.Slots) == 0 {
			fmt.Fprintf(tw, "%s\t-\t%s\n", date, d.Reason)
			continue
		}
		for _, s := range d.Slots {
			state := "free"
			if !s.IsAvailable {
				state = s.Reason
			}
			fmt.Fprintf(tw, "%s\t%s-%s\t%s\n", date, s.StartTime, s.EndTime, state)
		}
	}
	return tw.Flush()
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a doctor can be booked at a date and time",
		RunE: func(cmd *cobra.Command, args []string) error {
			doctorID, err := doctorFlag(cmd)
			if err != nil {
				return err
			}
			date, err := dateFlag(cmd, "date")
			if err != nil {
				return err
			}
			raw, _ := cmd.Flags().GetString("time")
			at, err := appointment.ParseClock(raw)
			if err != nil {
				return err
			}

			e, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer e.pool.Close()

			err = e.service().CheckBookingTime(cmd.Context(), doctorID, date, at)
			switch {
			case err == nil:
				fmt.Fprintln(cmd.OutOrStdout(), "available")
				return nil
			case errors.Is(err, appointment.ErrSchedulingConflict):
				fmt.Fprintf(cmd.OutOrStdout(), "unavailable: %s\n", appointment.ConflictReason(err))
				return nil
			default:
				return err
			}
		},
	}

	cmd.Flags().String("doctor", "", "doctor ID")
	cmd.Flags().String("date", "", "date (YYYY-MM-DD)")
	cmd.Flags().String("time", "", "time of day (HH:MM)")
	return cmd
}

func doctorFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString("doctor")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.New("--doctor must be a valid UUID")
	}
	return id, nil
}

func dateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	d, err := appointment.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}
