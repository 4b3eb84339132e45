package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"attendance/availability"
	"attendance/backfill"
	"attendance/checkin"
	"attendance/db"
	"attendance/db/checkins"
	"attendance/db/counters"
	"attendance/db/credentials"
	"attendance/db/events"
	"attendance/db/purchases"
	"attendance/db/tiers"
	"attendance/entity"
	"attendance/http"
	"attendance/pubsub"
	"attendance/pubsub/bus"
	"attendance/pubsub/command"
	"attendance/pubsub/outbox"
	"attendance/reconcile"
	"attendance/scanmemory"
)

type Options struct {
	HTTPAddr       string
	QuietWindow    time.Duration
	RefreshTimeout time.Duration
}

type Service struct {
	db                *sqlx.DB
	watermillRouter   *message.Router
	forwarder         *outbox.Forwarder
	changesSubscriber message.Subscriber
	hub               *reconcile.Hub
	httpServer        *http.Server
}

func New(
	dbConn *sqlx.DB,
	redisClient *redis.Client,
	issuer backfill.CredentialIssuer,
	scanMemory *scanmemory.Store,
	opts Options,
) Service {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	eventsRepo := events.NewPostgresRepository(dbConn)
	countersRepo := counters.NewPostgresRepository(dbConn)
	tiersRepo := tiers.NewPostgresRepository(dbConn)
	purchasesRepo := purchases.NewPostgresRepository(dbConn)
	credentialsRepo := credentials.NewPostgresRepository(dbConn)
	recordsRepo := checkins.NewPostgresRepository(dbConn)

	redisPublisher := pubsub.NewRedisPublisher(redisClient, watermillLogger)

	commandBus, err := bus.NewCommandBus(redisPublisher)
	if err != nil {
		panic(fmt.Errorf("failed to create command bus: %w", err))
	}

	aggregator := availability.NewAggregator(eventsRepo, tiersRepo, countersRepo, opts.RefreshTimeout)
	checkInService := checkin.NewService(credentialsRepo, eventsRepo, purchasesRepo, recordsRepo, scanMemory)
	planner := backfill.NewPlanner(purchasesRepo, eventsRepo, tiersRepo, credentialsRepo, issuer)
	loader := reconcile.NewLoader(aggregator, purchasesRepo, credentialsRepo, recordsRepo, scanMemory, opts.RefreshTimeout)
	backfillRequester := backfill.NewCommandRequester(commandBus)

	changesSubscriber := pubsub.NewRedisFanOutSubscriber(redisClient, watermillLogger)
	hub := reconcile.NewHub(context.Background(), func(eventID string, onChange func(entity.EventView)) *reconcile.Listener {
		return reconcile.NewListener(
			eventID,
			changesSubscriber,
			loader,
			scanMemory,
			backfillRequester,
			onChange,
			reconcile.Config{QuietWindow: opts.QuietWindow},
		)
	})

	outboxSubscriber, err := outbox.NewSubscriber(dbConn, watermillLogger)
	if err != nil {
		panic(fmt.Errorf("failed to create outbox subscriber: %w", err))
	}
	forwarder, err := outbox.NewForwarder(
		outboxSubscriber,
		pubsub.NewRedisForwardingPublisher(redisClient, watermillLogger),
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create outbox forwarder: %w", err))
	}

	watermillRouter, err := pubsub.NewWatermillRouter(
		command.NewProcessorConfig(redisClient, watermillLogger),
		command.NewHandler(planner),
		redisPublisher,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := http.NewServer(
		opts.HTTPAddr,
		aggregator,
		hub,
		loader,
		checkInService,
		planner,
		scanMemory,
	)

	return Service{
		db:                dbConn,
		watermillRouter:   watermillRouter,
		forwarder:         forwarder,
		changesSubscriber: changesSubscriber,
		hub:               hub,
		httpServer:        httpServer,
	}
}

func (s Service) Run(ctx context.Context) error {
	if err := db.InitializeDatabaseSchema(s.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		return s.forwarder.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()

		// listeners first, they still read from the subscriber
		s.hub.Close()
		return s.changesSubscriber.Close()
	})

	g.Go(func() error {
		// the service is not healthy before it can process commands and forward changes
		for _, running := range []chan struct{}{s.watermillRouter.Running(), s.forwarder.Running()} {
			select {
			case <-running:
			case <-ctx.Done():
				return nil
			}
		}

		return s.httpServer.Run(ctx)
	})

	return g.Wait()
}
