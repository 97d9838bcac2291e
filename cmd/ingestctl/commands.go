package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dump-ingestion-api/internal/archive"
	"github.com/dump-ingestion-api/internal/config"
	"github.com/dump-ingestion-api/internal/database"
	"github.com/dump-ingestion-api/internal/models"
	"github.com/dump-ingestion-api/internal/repository"
	"github.com/dump-ingestion-api/internal/service"
	"github.com/dump-ingestion-api/pkg/logger"
)

// env bundles what a command needs. The caller must defer env.Close().
type env struct {
	cfg *config.Config
	db  *database.DB
	log zerolog.Logger
}

// newEnv reads the config and opens the database
func newEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &env{cfg: cfg, db: db, log: log}, nil
}

func (e *env) Close() error {
	return e.db.Close()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ingestctl",
		Short:        "Operate the dump ingestion service",
		SilenceUsage: true,
	}
	root.AddCommand(newMigrateCmd(), newImportCmd(), newEntitiesCmd())
	return root
}

// migrate command
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.RunMigrations(); err != nil {
				return err
			}
			return printVersion(cmd, e.db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, e.db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "goto VERSION",
		Short: "Migrate up or down to VERSION",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}

			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.db.MigrateToVersion(uint(version)); err != nil {
				return err
			}
			return printVersion(cmd, e.db)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			return printVersion(cmd, e.db)
		},
	})

	return cmd
}

func printVersion(cmd *cobra.Command, db *database.DB) error {
	version, dirty, err := db.MigrationVersion()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if version == 0 {
		fmt.Fprintln(out, "Schema version: none")
		return nil
	}
	fmt.Fprintf(out, "Schema version: %d", version)
	if dirty {
		fmt.Fprint(out, " (dirty)")
	}
	fmt.Fprintln(out)
	return nil
}

type importOptions struct {
	entity        string
	operation     string
	file          string
	mode          string
	createMissing bool
}

// import command
func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run one exporter dump file through the ingestion pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.entity, "entity", "", "Entity slug, e.g. cgst (required)")
	cmd.Flags().StringVar(&opts.operation, "operation", "upload", "Operation: upload, update or delete")
	cmd.Flags().StringVar(&opts.file, "file", "", "Path to the JSON dump (required)")
	cmd.Flags().StringVar(&opts.mode, "mode", string(models.UploadModeCreate), "Upload mode: create or upsert")
	cmd.Flags().BoolVar(&opts.createMissing, "create-missing", true, "Create records that update cannot find")

	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("file")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		switch models.Operation(opts.operation) {
		case models.OperationUpload, models.OperationUpdate, models.OperationDelete:
		default:
			return fmt.Errorf("invalid --operation %q: must be one of upload, update, delete", opts.operation)
		}
		switch models.UploadMode(opts.mode) {
		case models.UploadModeCreate, models.UploadModeUpsert:
		default:
			return fmt.Errorf("invalid --mode %q: must be one of create, upsert", opts.mode)
		}
		return nil
	}

	return cmd
}

func runImport(cmd *cobra.Command, opts importOptions) error {
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return fmt.Errorf("reading dump: %w", err)
	}

	e, err := newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.Database.AutoMigrate {
		if err := e.db.RunMigrations(); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := archive.NewStoreFromConfig(ctx, &e.cfg.Archive)
	if err != nil {
		return err
	}
	services := service.NewServices(repository.New(e.db), store, models.DefaultRegistry(), e.cfg, e.log)

	var outcome *service.BatchOutcome
	switch models.Operation(opts.operation) {
	case models.OperationDelete:
		var req models.DeleteRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decoding dump: %w", err)
		}
		outcome, err = services.Ingest.Delete(ctx, opts.entity, &req)
	case models.OperationUpdate:
		var req models.BatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decoding dump: %w", err)
		}
		outcome, err = services.Ingest.Update(ctx, opts.entity, &req, opts.createMissing)
	default:
		var req models.BatchRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("decoding dump: %w", err)
		}
		outcome, err = services.Ingest.Upload(ctx, opts.entity, &req, models.UploadMode(opts.mode))
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	body, err := json.MarshalIndent(outcome.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run ID: %s\n", outcome.RunID)
	fmt.Fprintf(out, "Status: %d\n", outcome.Status)
	fmt.Fprintf(out, "Log:    %s\n", outcome.LogPath)
	fmt.Fprintln(out, string(body))

	if len(outcome.Result.ProcessedItems) == 0 {
		return fmt.Errorf("no item was processed (status %d)", outcome.Status)
	}
	return nil
}

// entities command
func newEntitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities",
		Short: "List the configured entity tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-15s %-15s %-15s %-15s %s\n", "SLUG", "TABLE", "EXPORT TAG", "STORAGE DIR", "REQUIRED FIELDS")
			for _, entity := range models.DefaultRegistry().All() {
				var required []string
				for _, f := range entity.Fields {
					if f.Required {
						required = append(required, f.Name)
					}
				}
				fmt.Fprintf(out, "%-15s %-15s %-15s %-15s %s\n",
					entity.Slug, entity.Table, entity.ExportTag, entity.StorageDir, strings.Join(required, ","))
			}
			return nil
		},
	}
}
