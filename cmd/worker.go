package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/showtime/services/notifier/config"
	"example.com/showtime/services/notifier/internal/cache"
	"example.com/showtime/services/notifier/internal/ingest"
	"example.com/showtime/services/notifier/internal/metrics"
	"example.com/showtime/services/notifier/internal/models"
	"example.com/showtime/services/notifier/internal/notify"
	"example.com/showtime/services/notifier/internal/regions"
	"example.com/showtime/services/notifier/internal/reminder"
	"example.com/showtime/services/notifier/internal/repositories"
	"example.com/showtime/services/notifier/internal/search"
	"example.com/showtime/services/notifier/internal/tracing"
	"example.com/showtime/services/notifier/internal/upstream"
	"example.com/showtime/services/notifier/internal/vf"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker that polls the upstream API, stores new events and delivers notifications and reminders`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize the quarantine store
	quarantine, err := cache.NewQuarantine(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis-backed quarantine, using in-memory only")
		quarantine, _ = cache.NewQuarantine(config.RedisConfig{Enabled: false})
	}
	defer quarantine.Close()

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer, _ = tracing.NewTracer(config.TracingConfig{})
	}
	defer tracer.Close()

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()
	metricsCollector.SetHealthCheck("database", true)

	// Initialize repositories
	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	artistRepo := repositories.NewArtistRepository(db, readOnlyDB)
	venueRepo := repositories.NewVenueRepository(db, readOnlyDB)
	statusRepo := repositories.NewStatusRepository(db, readOnlyDB)

	// Resolve configured regions
	regionList, err := regions.Load(cfg.Poller.Regions)
	if err != nil {
		return err
	}
	intlCodes := regions.InternationalCodes()

	loc, err := time.LoadLocation(cfg.Discord.DisplayTimezone)
	if err != nil {
		return errors.Wrapf(err, "invalid display timezone %q", cfg.Discord.DisplayTimezone)
	}

	// One-time schema capability check: detection results are only
	// persisted when the VF columns exist on the events table.
	vfCapable := db.Migrator().HasColumn(&models.Event{}, "has_vf")
	if cfg.VF.Enabled && !vfCapable {
		log.Warn().Msg("Events table lacks VF columns, Verified Fan detection results will not be persisted")
	}
	detector := vf.NewDetector(cfg.VF, eventRepo, vfCapable)

	// Initialize the Discord sender and, when enabled, the gateway
	// connection that carries reminder reactions.
	sender, err := notify.NewDiscordSender(cfg.Discord.Token)
	if err != nil {
		return err
	}

	scheduler := reminder.NewScheduler(eventRepo, sender, cfg.Discord, cfg.Reminder, intlCodes, loc, metricsCollector)

	if cfg.Discord.GatewayEnabled {
		reminder.NewReactions(eventRepo, scheduler).Register(sender.Session())
		if err := sender.Open(); err != nil {
			return err
		}
		defer sender.Close()
	}

	pipeline := ingest.NewPipeline(
		upstream.NewClient(cfg.Upstream),
		eventRepo, artistRepo, venueRepo, statusRepo,
		detector, elasticClient, scheduler,
		regionList, cfg.Upstream.MaxPages, cfg.Upstream.PageDelay,
		metricsCollector, tracer,
	)

	router := notify.NewRouter(eventRepo, sender, quarantine, cfg.Discord, intlCodes, loc, metricsCollector)

	// Run the periodic tasks on a shared scheduler. Singleton mode keeps a
	// slow cycle from overlapping with the next tick of the same job.
	g.Go(func() error {
		cron, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		if _, err := cron.NewJob(
			gocron.DurationJob(cfg.Poller.IngestInterval),
			gocron.NewTask(func() {
				if err := pipeline.Cycle(ctx); err != nil {
					log.Error().Err(err).Msg("Ingestion cycle failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}

		if _, err := cron.NewJob(
			gocron.DurationJob(cfg.Poller.NotifyInterval),
			gocron.NewTask(func() {
				if err := router.NotifyAll(ctx); err != nil {
					log.Error().Err(err).Msg("Delivery pass failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}

		if _, err := cron.NewJob(
			gocron.DurationJob(cfg.Poller.ReminderInterval),
			gocron.NewTask(func() {
				if err := scheduler.Sweep(ctx); err != nil {
					log.Error().Err(err).Msg("Reminder sweep failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}

		if _, err := cron.NewJob(
			gocron.DurationJob(cfg.VF.RecheckInterval),
			gocron.NewTask(func() {
				if err := detector.Sweep(ctx); err != nil {
					log.Error().Err(err).Msg("VF recheck sweep failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return err
		}

		cron.Start()
		log.Info().
			Strs("regions", cfg.Poller.Regions).
			Dur("ingest_interval", cfg.Poller.IngestInterval).
			Msg("Worker started")

		<-ctx.Done()
		return cron.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

func initDatabases(cfg config.Config) (*gorm.DB, *gorm.DB, error) {
	// Initialize write database
	db, err := gorm.Open(postgres.Open(cfg.DB.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to write database")
	}

	// The read-only replica is optional; without one, reads share the
	// write connection.
	readOnlyDB := db
	if cfg.DB.ReadOnlyDSN != "" {
		readOnlyDB, err = gorm.Open(postgres.Open(cfg.DB.ReadOnlyDSN), &gorm.Config{})
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to connect to read-only database")
		}
	}

	// Auto-migrate only the write database
	if err := models.SetupModels(db); err != nil {
		return nil, nil, errors.Wrap(err, "failed to run migrations")
	}

	// Configure connection pools for both databases
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get underlying write DB connection")
	}
	sqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	if readOnlyDB != db {
		readSqlDB, err := readOnlyDB.DB()
		if err != nil {
			return nil, nil, errors.Wrap(err, "failed to get underlying read-only DB connection")
		}
		readSqlDB.SetMaxIdleConns(cfg.DB.MaxIdleConns * 2)
		readSqlDB.SetMaxOpenConns(cfg.DB.MaxOpenConns * 2)
		readSqlDB.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	}

	return db, readOnlyDB, nil
}
