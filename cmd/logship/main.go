package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmrzaf/logship/internal/app"
	"github.com/mmrzaf/logship/internal/config"
	"github.com/mmrzaf/logship/internal/domain"
	"github.com/mmrzaf/logship/internal/infra/repos/profiles"
	"github.com/mmrzaf/logship/internal/logging"
	"github.com/mmrzaf/logship/internal/logtypes"
	"github.com/mmrzaf/logship/internal/shipper"
	"github.com/mmrzaf/logship/internal/timeutil"
	"github.com/mmrzaf/logship/internal/validation"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	profilesDir   string
	checkpointDB  string
	checkpointDSN string
	logLevel      string
)

func main() {
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "logship",
		Short: "Checkpointed log shipper",
	}

	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles-dir", cfg.ProfilesDir, "Profiles directory")
	rootCmd.PersistentFlags().StringVar(&checkpointDB, "checkpoint-db", cfg.CheckpointDB, "Checkpoint database path (sqlite)")
	rootCmd.PersistentFlags().StringVar(&checkpointDSN, "checkpoint-dsn", cfg.CheckpointDSN, "Checkpoint database DSN (postgres, overrides --checkpoint-db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level")

	rootCmd.AddCommand(runCmd(cfg))
	rootCmd.AddCommand(historyCmd(cfg))
	rootCmd.AddCommand(checkpointCmd(cfg))
	rootCmd.AddCommand(profileCmd())
	rootCmd.AddCommand(typesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newService(cfg *config.Config) *app.ShipService {
	cfg.ProfilesDir = profilesDir
	cfg.CheckpointDB = checkpointDB
	cfg.CheckpointDSN = checkpointDSN
	cfg.LogLevel = logLevel

	logger := logging.NewLogger(logLevel)
	repo := profiles.NewFileRepository(profilesDir)
	return app.NewShipService(repo, cfg, logger)
}

func runCmd(cfg *config.Config) *cobra.Command {
	var (
		sourceID   string
		sinkID     string
		batchSize  int
		maxRetries int
		maxRunTime string
		startFrom  string
		logTypes   []string
		minLevel   int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the shipper once",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &domain.ShipRequest{
				SourceID:   sourceID,
				SinkID:     sinkID,
				BatchSize:  batchSize,
				MaxRetries: maxRetries,
				StartFrom:  startFrom,
				LogTypes:   logTypes,
				LogLevel:   minLevel,
			}

			if maxRunTime != "" {
				d, err := timeutil.ParseDuration(maxRunTime)
				if err != nil {
					return fmt.Errorf("invalid --max-run-time: %w", err)
				}
				req.MaxRunTimeSeconds = int(d / time.Second)
			}

			svc := newService(cfg)
			res, err := svc.Ship(context.Background(), req)

			var skip *shipper.SkipRangeError
			if errors.As(err, &skip) {
				fmt.Printf("Run gave up on a batch: %v\n", skip)
				fmt.Printf("Next run resumes after checkpoint %s\n", skip.To)
				return err
			}
			if err != nil {
				return err
			}

			fmt.Printf("Run completed: %d logs shipped\n", res.Status.LogsProcessed)
			if res.Status.Warning != "" {
				fmt.Printf("Warning: %s\n", res.Status.Warning)
			}
			fmt.Printf("Checkpoint: %s\n", res.Checkpoint)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "fake", "Source profile ID")
	cmd.Flags().StringVar(&sinkID, "sink", "writer", "Sink profile ID")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Logs per delivered batch")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "Delivery retries per run")
	cmd.Flags().StringVar(&maxRunTime, "max-run-time", "", "Wall-clock budget per run (e.g. 20s, 5m)")
	cmd.Flags().StringVar(&startFrom, "start-from", "", "Initial checkpoint when none is persisted (RFC3339, -24h, or an opaque cursor)")
	cmd.Flags().StringSliceVar(&logTypes, "log-types", nil, "Log types to ship (default: all)")
	cmd.Flags().IntVar(&minLevel, "min-level", 0, "Also ship every log type at or above this severity (1-4)")
	return cmd
}

func historyCmd(cfg *config.Config) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history <source>",
		Short: "Show persisted run history for a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newService(cfg)
			history, err := svc.History(context.Background(), args[0])
			if err != nil {
				return err
			}

			if format == "json" {
				data, _ := json.MarshalIndent(history, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tLOGS\tCHECKPOINT\tERROR")
			for _, r := range history {
				id := r.ID
				if len(id) > 8 {
					id = id[:8]
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					id, r.StartedAt.Format("2006-01-02 15:04"), r.LogsProcessed, r.Checkpoint, r.Error)
			}
			w.Flush()
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")
	return cmd
}

func checkpointCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or rewind the resumption checkpoint",
	}

	showCmd := &cobra.Command{
		Use:   "show <source>",
		Short: "Show the persisted checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newService(cfg)
			cp, err := svc.Checkpoint(context.Background(), args[0])
			if err != nil {
				return err
			}
			if cp == "" {
				fmt.Println("(no checkpoint)")
				return nil
			}
			fmt.Println(cp)
			return nil
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <source> <checkpoint>",
		Short: "Rewrite the checkpoint, keeping the run history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newService(cfg)
			if err := svc.ResetCheckpoint(context.Background(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("Checkpoint for '%s' set to %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(showCmd, resetCmd)
	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage source and sink profiles",
	}

	var format string

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := profiles.NewFileRepository(profilesDir)
			list, err := repo.List()
			if err != nil {
				return err
			}

			if format == "json" {
				data, _ := json.MarshalIndent(list, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tKIND\tTARGET")
			for _, p := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Kind, profileTarget(p))
			}
			w.Flush()
			return nil
		},
	}
	listCmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show profile details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := profiles.NewFileRepository(profilesDir)
			profile, err := repo.Get(args[0])
			if err != nil {
				return err
			}

			data, _ := yaml.Marshal(profile)
			fmt.Println(string(data))
			return nil
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate <id|path>",
		Short: "Validate a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := profiles.NewFileRepository(profilesDir)
			var profile *domain.Profile
			var err error

			if strings.Contains(args[0], "/") || strings.HasSuffix(args[0], ".yaml") || strings.HasSuffix(args[0], ".yml") {
				profile, err = repo.GetByPath(args[0])
			} else {
				profile, err = repo.Get(args[0])
			}

			if err != nil {
				return err
			}

			if err := validation.ValidateProfile(profile); err != nil {
				fmt.Printf("Validation failed: %v\n", err)
				return err
			}

			fmt.Printf("Profile '%s' is valid\n", profile.ID)
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, validateCmd)
	return cmd
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List known log types",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tLEVEL")
			for _, lt := range logtypes.All() {
				fmt.Fprintf(w, "%s\t%d\n", lt.Name, lt.Level)
			}
			w.Flush()
			return nil
		},
	}
}

func profileTarget(p *domain.Profile) string {
	target := p.URL
	if target == "" {
		target = p.DSN
	}
	if len(target) > 50 {
		target = target[:47] + "..."
	}
	return target
}
