package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/paymentfabric/slashpay-engine/internal/application/manager"
	"github.com/paymentfabric/slashpay-engine/internal/application/pluginmanager"
	"github.com/paymentfabric/slashpay-engine/internal/domain/event"
	domainstore "github.com/paymentfabric/slashpay-engine/internal/domain/store"
	"github.com/paymentfabric/slashpay-engine/internal/infra/config"
	"github.com/paymentfabric/slashpay-engine/internal/infra/logging"
	"github.com/paymentfabric/slashpay-engine/internal/infra/metrics"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/eventbus"
	httpapi "github.com/paymentfabric/slashpay-engine/internal/infrastructure/http"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/notification"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/outbox"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/persistence/inmemory"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/persistence/sqlite"
	"github.com/paymentfabric/slashpay-engine/internal/infrastructure/transport/memconnector"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logging.NewLogrusLogger(nil)

	var st domainstore.Store
	switch cfg.StoreDriver {
	case "sqlite":
		db, err := sqlite.OpenPure(cfg.SqliteDSN)
		if err != nil {
			log.Fatalf("opening sqlite store: %v", err)
		}
		st = sqlite.New(db)
	default:
		st = inmemory.New()
	}

	conn := memconnector.New()
	bus := eventbus.NewInMemoryBus()

	outboxDB, err := sqlite.OpenPure(":memory:")
	if err != nil {
		log.Fatalf("opening outbox db: %v", err)
	}
	if err := sqlite.RunMigrations(outboxDB); err != nil {
		log.Fatalf("running outbox migrations: %v", err)
	}
	outboxRepo := outbox.NewSQLiteRepository(outboxDB)
	recorder := &outbox.Recorder{Repo: outboxRepo}

	counters := metrics.NewCounters()
	plugins := pluginmanager.New(pluginmanager.Config{}, logger)

	paymentManager := manager.New(st, plugins, conn, recorder, logger, counters)

	ctx := context.Background()
	if err := paymentManager.Init(ctx); err != nil {
		log.Fatalf("initializing payment manager: %v", err)
	}

	notifHandler := &notification.Handler{Files: paymentManager, Logger: logger}
	bus.Subscribe(event.ReadyToReceive, notifHandler.Handle)
	bus.Subscribe(event.PaymentOrderCompleted, notifHandler.Handle)
	bus.Subscribe(event.UserNotification, notifHandler.Handle)

	pollInterval, err := time.ParseDuration(cfg.OutboxPollInterval)
	if err != nil {
		log.Fatalf("parsing outbox poll interval: %v", err)
	}
	dispatcher := &outbox.Dispatcher{
		Repo:         outboxRepo,
		EventBus:     bus,
		PollInterval: pollInterval,
		BatchSize:    cfg.OutboxBatchSize,
	}
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	defer cancelDispatch()
	go dispatcher.Run(dispatchCtx)

	router := httpapi.NewRouter(&httpapi.StatusHandler{Store: st})

	logger.Info("slashpay-engine listening", map[string]any{"addr": cfg.HTTPAddr})
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, router))
}
