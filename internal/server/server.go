package server

import (
	"log/slog"
	"strings"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/config"
	"backend-runtracker/internal/db"
	"backend-runtracker/internal/feed"
	"backend-runtracker/internal/journal"
	"backend-runtracker/internal/observability"
	"backend-runtracker/internal/storage"
	"backend-runtracker/internal/stream"
	"backend-runtracker/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Feeds    *feed.Hub
	Registry *tracking.Registry
	Journal  journal.Store
	Logger   *slog.Logger

	presigner storage.Presigner
}

// NewServer wires the HTTP surface. pg, redisClient and presigner may be nil;
// the features that need them degrade instead of failing startup.
func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, presigner storage.Presigner, log *slog.Logger) *Server {
	if log == nil {
		log = observability.Discard()
	}
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:       app,
		Cfg:       cfg,
		DB:        pg,
		Redis:     redisClient,
		Stream:    stream.NewHub(redisClient, log),
		Feeds:     feed.NewHub(cfg.LocationConsentDefault),
		Logger:    log,
		presigner: presigner,
	}
	s.Registry = tracking.NewRegistry(s.newRecorder)
	s.Journal = newJournalStore(cfg, s.querier(), redisClient, log)

	registerRoutes(s)
	return s
}

func (s *Server) newRecorder(runnerID string) *tracking.Recorder {
	return tracking.NewRecorder(tracking.RecorderConfig{
		RunnerID: runnerID,
		Source:   s.Feeds.ForRunner(runnerID),
		Timer:    tracking.NewSecondTimer(s.Cfg.TickInterval),
		Options: tracking.SubscribeOptions{
			Accuracy:     tracking.ParseAccuracy(s.Cfg.LocationAccuracy),
			MinDistanceM: s.Cfg.MinDistanceM,
		},
		Observer: s.Stream.Observe,
		Logger:   s.Logger,
	})
}

// querier keeps a nil pool from turning into a non-nil interface.
func (s *Server) querier() db.Querier {
	if s.DB == nil {
		return nil
	}
	return s.DB
}

func newJournalStore(cfg config.Config, pg db.Querier, rdb *redis.Client, log *slog.Logger) journal.Store {
	kind := strings.ToLower(cfg.RecordStore)
	switch kind {
	case "memory":
		return journal.NewMemoryStore()
	case "redis":
		if rdb != nil {
			return journal.NewRedisStore(rdb)
		}
	default:
		if pg != nil {
			return journal.NewPostgresStore(pg)
		}
	}
	log.Warn("record store backend unavailable, keeping journal in memory", "record_store", kind)
	return journal.NewMemoryStore()
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.querier()))

	trackingGroup := s.App.Group("/tracking")
	tracking.RegisterRoutes(trackingGroup, s.Registry, jwtMiddleware)
	feed.RegisterRoutes(trackingGroup, s.Feeds, jwtMiddleware)

	journal.RegisterRoutes(s.App.Group("/journal"), journal.NewService(s.Journal, s.Logger), s.Registry, jwtMiddleware)
	storage.RegisterRoutes(s.App.Group("/storage"),
		storage.NewService(s.querier(), s.presigner, s.Cfg.PhotoBucket, s.Cfg.AWSRegion), jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, auth.WebsocketMiddleware(s.Cfg.JWTSecret))
}

// Close stops every recorder and the stream hub. Records nobody saved are
// logged so the run is not lost silently.
func (s *Server) Close() map[string]tracking.Record {
	pending := s.Registry.Close()
	for runnerID, rec := range pending {
		s.Logger.Warn("unsaved record at shutdown",
			"runner_id", runnerID,
			"record_id", rec.ID,
			"distance_m", rec.DistanceM,
			"duration_sec", rec.DurationSec,
		)
	}
	s.Stream.Close()
	return pending
}
