package main

import (
	"fmt"
	"time"

	"github.com/fekuna/omnipos-fulfillment-service/config"
	invrepo "github.com/fekuna/omnipos-fulfillment-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-fulfillment-service/internal/location"
	"github.com/fekuna/omnipos-fulfillment-service/internal/location/dto"
	locrepo "github.com/fekuna/omnipos-fulfillment-service/internal/location/repository"
	locuc "github.com/fekuna/omnipos-fulfillment-service/internal/location/usecase"
	"github.com/fekuna/omnipos-fulfillment-service/migrations"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/cache"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/database/postgres"
	"github.com/fekuna/omnipos-fulfillment-service/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	dryRun        bool
	layoutPath    string
	slotsPerShelf int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "setup",
		Short:         "Warehouse setup tooling for the fulfillment service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "run against an in-memory store and discard the result")

	locationsCmd := &cobra.Command{
		Use:   "locations",
		Short: "Manage the warehouse location hierarchy",
	}

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Create zones, aisles, bays and shelves from a YAML layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, opts)
		},
	}
	importCmd.Flags().StringVar(&opts.layoutPath, "layout", "", "path to the layout YAML file")
	importCmd.Flags().IntVar(&opts.slotsPerShelf, "slots-per-shelf", 0, "also generate this many slots per shelf")
	_ = importCmd.MarkFlagRequired("layout")

	generateCmd := &cobra.Command{
		Use:   "generate-slots",
		Short: "Generate slots under every shelf when the hierarchy has none yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateSlots(cmd, opts)
		},
	}
	generateCmd.Flags().IntVar(&opts.slotsPerShelf, "per-shelf", 0, "slots per shelf (defaults to SLOTS_PER_SHELF)")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the fulfillment tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, opts)
		},
	}

	locationsCmd.AddCommand(importCmd, generateCmd)
	rootCmd.AddCommand(locationsCmd, migrateCmd)
	return rootCmd
}

// backend builds the location usecase for one run. closeFn releases what it opened.
func backend(opts *options, log logger.ZapLogger) (uc location.UseCase, settings config.FulfillmentConfig, closeFn func(), err error) {
	cfg := config.LoadEnv()
	settings = cfg.Fulfillment
	ucSettings := locuc.Settings{BatchSize: settings.BulkInsertBatchSize, LockTTL: settings.LockTTL}

	if opts.dryRun {
		log.Info("Dry run: using an in-memory location store")
		uc = locuc.NewLocationUseCase(locrepo.NewMemoryRepository(), cache.NewMemoryLocker(), invrepo.NewMemoryRepository(), ucSettings, log)
		return uc, settings, func() {}, nil
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, settings, nil, err
	}
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		db.Close()
		return nil, settings, nil, err
	}

	uc = locuc.NewLocationUseCase(locrepo.NewPGRepository(db), redisClient, invrepo.NewPGRepository(db), ucSettings, log)
	return uc, settings, func() {
		redisClient.Close()
		db.Close()
	}, nil
}

func openDB(cfg *config.Config) (*sqlx.DB, error) {
	return postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
}

func newLogger() logger.ZapLogger {
	return logger.NewZapLogger(&logger.ZapLoggerConfig{
		IsDevelopment:     true,
		Encoding:          "console",
		Level:             "info",
		DisableStacktrace: true,
	})
}

func runImport(cmd *cobra.Command, opts *options) error {
	log := newLogger()
	defer log.Sync()

	layout, err := dto.LoadLayout(opts.layoutPath)
	if err != nil {
		return err
	}

	uc, _, closeFn, err := backend(opts, log)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	created, err := uc.ImportLayout(ctx, layout)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported layout: %d locations created\n", created)
	log.Info("Layout imported", zap.String("path", opts.layoutPath), zap.Int("created", created))

	if opts.slotsPerShelf > 0 {
		return generateSlots(cmd, uc, opts.slotsPerShelf, log)
	}
	return nil
}

// generateSlots prints how many slots were created and warns when none were:
// generation is skipped once any slot exists.
func generateSlots(cmd *cobra.Command, uc location.UseCase, perShelf int, log logger.ZapLogger) error {
	slots, err := uc.GenerateSlots(cmd.Context(), perShelf)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated %d slots\n", slots)
	if slots == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning: no slots generated; the hierarchy already has slots or has no shelves")
		log.Warn("Slot generation was a no-op", zap.Int("per_shelf", perShelf))
	}
	return nil
}

func runGenerateSlots(cmd *cobra.Command, opts *options) error {
	log := newLogger()
	defer log.Sync()

	uc, settings, closeFn, err := backend(opts, log)
	if err != nil {
		return err
	}
	defer closeFn()

	perShelf := opts.slotsPerShelf
	if perShelf <= 0 {
		perShelf = settings.SlotsPerShelf
	}

	return generateSlots(cmd, uc, perShelf, log)
}

func runMigrate(cmd *cobra.Command, opts *options) error {
	log := newLogger()
	defer log.Sync()

	if opts.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Dry run: schema not applied")
		return nil
	}

	db, err := openDB(config.LoadEnv())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Apply(cmd.Context(), db); err != nil {
		return err
	}
	log.Info("Schema applied")
	fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
	return nil
}
