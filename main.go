package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"stars-host/config"
	"stars-host/handlers"
	"stars-host/middleware"
	"stars-host/repository"
	"stars-host/services"
	"stars-host/starsfile"
	"stars-host/storage"
	"stars-host/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "stars-host",
		Short:         "Hosts Stars! play-by-email games and generates their turns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "stars-host.yaml", "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(serveCmd(), generateCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// app bundles everything the commands share.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	repo  *repository.GormRepository
	turns *services.TurnService
}

func setup(ctx context.Context) (*app, error) {
	log, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	repo := repository.NewGormRepository(db)

	store, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	codec := starsfile.NewBlockCodec()
	turns := services.NewTurnService(
		repo,
		services.NewStarsFileService(store, codec, log),
		services.NewWorkspaceManager(cfg.Engine.WorkspaceRoot, log),
		services.NewEngineInvoker(cfg.Engine, log),
		services.NewOutputCollector(codec, log),
		services.NewScoreReconciler(log),
		log,
	)
	return &app{cfg: cfg, log: log, repo: repo, turns: turns}, nil
}

func openStore(ctx context.Context, sc config.StorageConfig, log *zap.Logger) (storage.BlobStore, error) {
	if sc.Bucket != "" {
		log.Info("☁️ storing files in bucket", zap.String("bucket", sc.Bucket))
		return storage.NewR2Store(ctx, storage.R2Options{
			AccountID:       sc.AccountID,
			AccessKeyID:     sc.AccessKeyID,
			AccessKeySecret: sc.AccessKeySecret,
			Bucket:          sc.Bucket,
			Endpoint:        sc.Endpoint,
		})
	}
	log.Info("📁 storing files on disk", zap.String("dir", sc.LocalDir))
	return storage.NewDiskStore(sc.LocalDir)
}

func retryPolicy(rc config.RetryConfig) workers.RetryPolicy {
	return workers.RetryPolicy{
		MaxAttempts:    rc.MaxAttempts,
		InitialBackoff: rc.InitialBackoff,
		MaxBackoff:     rc.MaxBackoff,
	}
}

func serveCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP surface, generation worker and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			if migrate {
				if err := a.repo.AutoMigrate(); err != nil {
					return fmt.Errorf("failed to migrate database: %w", err)
				}
			}
			if a.cfg.ServiceToken == "" {
				return errors.New("GAME_SERVICE_TOKEN is not set, cannot authenticate the gateway")
			}

			worker := workers.NewGenerationWorker(a.turns, retryPolicy(a.cfg.Retry), 0, a.log)
			worker.Start(ctx)

			scheduler := services.NewGenerationScheduler(a.repo, worker, a.cfg.SchedulerInterval, a.log)
			if err := scheduler.Start(); err != nil {
				return err
			}

			server := fiber.New(fiber.Config{DisableStartupMessage: true})
			server.Use(middleware.GatewayAuthMiddleware(a.cfg.ServiceToken, a.log))
			handlers.SetupGameRoutes(server, handlers.NewGameHandler(a.repo, worker, a.log))

			listenErr := make(chan error, 1)
			go func() {
				listenErr <- server.Listen(a.cfg.ListenAddr)
			}()
			a.log.Info("✅ stars-host running", zap.String("addr", a.cfg.ListenAddr))

			select {
			case <-ctx.Done():
			case err := <-listenErr:
				a.log.Error("server stopped", zap.Error(err))
				stop()
			}

			a.log.Info("shutting down")
			if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
				a.log.Warn("server shutdown", zap.Error(err))
			}
			if err := scheduler.Shutdown(); err != nil {
				a.log.Warn("scheduler shutdown", zap.Error(err))
			}
			worker.Wait()
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run schema migrations before serving")
	return cmd
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate <game-id>",
		Short: "Activate or generate one game in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid game id %q: %w", args[0], err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			worker := workers.NewGenerationWorker(a.turns, retryPolicy(a.cfg.Retry), 1, a.log)
			turn, err := worker.RunSync(ctx, uint(id))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "game %d is now at year %d\n", id, turn.Year)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.log.Sync() }()

			if err := a.repo.AutoMigrate(); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			a.log.Info("✅ database migrated")
			return nil
		},
	}
}
