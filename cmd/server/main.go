package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/analytics"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/api"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/channels/email"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/channels/sms"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/config"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/engine"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/events/kafka"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/interfaces"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/locking"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/logging"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/models"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/notify"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage/memory"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/storage/postgres"
	"github.com/sheikh-saqib/transaction-notification-engine/internal/sweep"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, _, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init store", zap.Error(err))
	}
	defer closeStore()

	locker, closeLocker := openLocker(cfg, logger)
	defer closeLocker()

	routerOpts := []notify.Option{
		notify.WithLogger(logger.Named("notify")),
		notify.WithEmail(email.NewSender(email.Config{
			Host: cfg.SMTPHost, Port: cfg.SMTPPort, Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword, From: cfg.SMTPFrom,
		})),
		notify.WithSMS(sms.NewGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken)),
	}
	engineOpts := []engine.Option{engine.WithLogger(logger.Named("engine"))}

	if len(cfg.KafkaBrokers) > 0 {
		publisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer publisher.Close()
		routerOpts = append(routerOpts, notify.WithRealtime(kafka.NewRealtimeChannel(publisher, cfg.KafkaNotificationsTopic)))
		engineOpts = append(engineOpts, engine.WithPublisher(publisher, cfg.KafkaEventsTopic))
	} else {
		logger.Warn("KAFKA_BROKERS not set; real-time notifications and events disabled")
	}

	resolver := notify.NewResolver(store, store.Accounts())
	router := notify.NewRouter(store.Accounts(), store, resolver, routerOpts...)
	eng := engine.NewEngine(store, locker, router, engineOpts...)

	sweeper := sweep.NewSweeper(store.Accounts(), store.Transactions(), router, cfg.FlaggedReminderAge, logger.Named("sweep"))
	runner := sweep.NewRunner(sweeper, cfg.SweepInterval, logger.Named("sweep"))
	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweep runner", zap.Error(err))
		}
	}()

	handler := api.NewHandler(eng, router, resolver, analytics.NewService(store.Transactions()), logger.Named("api"))
	srv := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddress()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("graceful shutdown error", zap.Error(err))
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (interfaces.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		store := memory.NewStore()
		if err := seedDemoAccounts(ctx, store); err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	store, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func openLocker(cfg config.Config, logger *zap.Logger) (interfaces.Locker, func()) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; using in-process account locks")
		return locking.NewMutexes(), func() {}
	}

	client := goredislib.NewClient(&goredislib.Options{Addr: cfg.RedisAddr})
	opts := locking.DefaultRedisOptions()
	opts.Expiry = cfg.LockTTL
	return locking.NewRedisLocker(client, opts, logger.Named("locking")), func() { _ = client.Close() }
}

// seedDemoAccounts gives the in-memory mode something to transact with.
func seedDemoAccounts(ctx context.Context, store *memory.Store) error {
	demo := []models.Account{
		{ID: "acc-alice", AccountNumber: "1000000001", HolderName: "Alice Moreno", Username: "alice",
			Email: "alice@example.com", Phone: "+15550100001", Balance: decimal.NewFromInt(1000)},
		{ID: "acc-bob", AccountNumber: "1000000002", HolderName: "Bob Okafor", Username: "bob",
			Email: "bob@example.com", Phone: "+15550100002", Balance: decimal.NewFromInt(250)},
	}
	now := time.Now().UTC()
	for _, a := range demo {
		a.CreatedAt = now
		if err := store.SaveAccount(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
