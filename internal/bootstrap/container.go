package bootstrap

import (
	"context"
	"fmt"

	"grant-assistant-be/internal/config"
	"grant-assistant-be/internal/controller"
	"grant-assistant-be/internal/handler"
	"grant-assistant-be/internal/pkg/logger"
	"grant-assistant-be/internal/repository/contract"
	"grant-assistant-be/internal/repository/implementation"
	"grant-assistant-be/internal/repository/memory"
	"grant-assistant-be/internal/service"
	"grant-assistant-be/internal/websocket"
	"grant-assistant-be/pkg/database"
	"grant-assistant-be/pkg/events"
	pktNats "grant-assistant-be/pkg/nats"
	"grant-assistant-be/pkg/proposal/contextstore"
	"grant-assistant-be/pkg/proposal/draft"
	"grant-assistant-be/pkg/proposal/session"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"

	EventsChannel = "channel"
	EventsNats    = "nats"
)

type Container struct {
	Logger logger.ILogger

	// Controllers
	ProposalController controller.IProposalController
	DraftController    controller.IDraftController

	// Services (exposed for main.go to run)
	ProposalService service.IProposalService
	DraftService    service.IDraftService
	ConsumerService service.IConsumerService

	// WebSockets
	StreamHandler *handler.StreamHandler
	WebSocketHub  *websocket.Hub

	Repository contract.KVRepository
	fallback   *implementation.FallbackKVRepository
	closers    []func()
}

// NewContainer wires the engine for the configured storage and event
// drivers. Unreachable infrastructure degrades to in-process substitutes.
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	c := &Container{Logger: sysLogger}

	// 2. Storage
	rdb := c.connectRedis(cfg)
	repo, err := c.openRepository(cfg, rdb)
	if err != nil {
		return nil, err
	}
	c.Repository = repo

	// 3. Event Bus
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { pubSub.Close() })

	var publisher events.Publisher = events.NewChannelPublisher(pubSub, cfg.Events.Topic)
	var natsSub *pktNats.Subscriber
	if cfg.Events.Driver == EventsNats {
		natsPub, err := pktNats.NewPublisher(cfg.Events.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect NATS publisher, using in-process events", map[string]interface{}{"error": err.Error()})
		} else {
			publisher = natsPub
			c.closers = append(c.closers, natsPub.Close)

			natsSub, err = pktNats.NewSubscriber(cfg.Events.NatsURL, sysLogger)
			if err != nil {
				sysLogger.Warn("Bootstrap", "Failed to connect NATS subscriber", map[string]interface{}{"error": err.Error()})
				natsSub = nil
			} else {
				c.closers = append(c.closers, natsSub.Close)
			}
		}
	}

	// 4. Engine
	contexts := contextstore.New(repo, sysLogger)
	sessions := session.NewManager(repo, contexts, sysLogger, session.WithTTL(cfg.Session.TTL))
	c.closers = append(c.closers, sessions.Attach(contexts))
	drafts := draft.NewManager(repo, sysLogger, draft.WithAutoSave(cfg.Draft.AutoSaveEnabled))
	transcript := service.NewTranscript(repo, sysLogger, cfg.Draft.TranscriptLimit)

	// 5. Services
	c.DraftService = service.NewDraftService(drafts, contexts, transcript, publisher, sysLogger)
	c.ProposalService = service.NewProposalService(
		contexts,
		sessions,
		c.DraftService,
		transcript,
		publisher,
		sysLogger,
		cfg.Draft.AutoSaveEveryChanges,
	)
	c.ConsumerService = service.NewConsumerService(pubSub, cfg.Events.Topic, natsSub, sysLogger)

	// 6. Live stream
	wsLogger := logger.NewIsolatedLogger(cfg.App.StreamLogFilePath)
	c.WebSocketHub = websocket.NewHub(rdb, wsLogger)
	c.closers = append(c.closers, c.ProposalService.Subscribe(func(snap contextstore.Snapshot) {
		c.WebSocketHub.Publish("context", service.NewContextResponse(snap))
	}))
	c.StreamHandler = handler.NewStreamHandler(c.ProposalService, c.WebSocketHub, wsLogger)

	// 7. Controllers
	c.ProposalController = controller.NewProposalController(c.ProposalService, c.ConsumerService)
	c.DraftController = controller.NewDraftController(c.DraftService)

	return c, nil
}

func (c *Container) connectRedis(cfg *config.Config) *redis.Client {
	opt, err := redis.ParseURL(cfg.Storage.RedisURL)
	if err != nil {
		c.Logger.Warn("Bootstrap", "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: cfg.Storage.RedisURL}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		c.Logger.Warn("Bootstrap", "Redis unreachable", map[string]interface{}{"error": err.Error()})
		rdb.Close()
		return nil
	}
	c.closers = append(c.closers, func() { rdb.Close() })
	return rdb
}

func (c *Container) openRepository(cfg *config.Config, rdb *redis.Client) (contract.KVRepository, error) {
	switch cfg.Storage.Driver {
	case DriverMemory, "":
		return memory.NewKVRepository(), nil

	case DriverRedis:
		var primary contract.KVRepository
		if rdb != nil {
			primary = implementation.NewRedisKVRepository(rdb, cfg.Storage.RedisPrefix)
		}
		c.fallback = implementation.NewFallbackKVRepository(primary, c.Logger)
		return c.fallback, nil

	case DriverPostgres:
		var primary contract.KVRepository
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.App.Environment == "development")
		if err != nil {
			c.Logger.Warn("Bootstrap", "Postgres unreachable", map[string]interface{}{"error": err.Error()})
		} else {
			primary = implementation.NewGormKVRepository(db)
			if sqlDB, err := db.DB(); err == nil {
				c.closers = append(c.closers, func() { sqlDB.Close() })
			}
		}
		c.fallback = implementation.NewFallbackKVRepository(primary, c.Logger)
		return c.fallback, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// StorageDegraded reports whether persistence has fallen back to memory.
func (c *Container) StorageDegraded() bool {
	return c.fallback != nil && c.fallback.Degraded()
}

// Close releases connections in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.Logger.Sync()
}
