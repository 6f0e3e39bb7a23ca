package main

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solva-wallet/internal/api"
	"solva-wallet/internal/chain"
	"solva-wallet/internal/cli"
	"solva-wallet/internal/config"
	"solva-wallet/internal/emitters"
	"solva-wallet/internal/events"
	"solva-wallet/internal/health"
	"solva-wallet/internal/interfaces"
	"solva-wallet/internal/logger"
	"solva-wallet/internal/payment"
	"solva-wallet/internal/search"
	"solva-wallet/internal/session"
	"solva-wallet/internal/wallet"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Error().Interface("panic", r).Msg("Application panicked, recovering")
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.RateLimit, cfg.Backend.Timeout, logger.Component("api"))

	chainClient, err := chain.Dial(ctx, cfg.Chain, logger.Component("chain"))
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Str("endpoint", cfg.Chain.RpcEndpoint).Msg("Failed to connect to chain")
	}

	reader := bufio.NewReader(os.Stdin)
	out := os.Stdout
	notifier := cli.NewConsoleNotifier(out)

	store := session.New(backend, chainClient, notifier, logger.Component("session"))
	defer store.Wait()

	connector := wallet.NewConnector(logger.Component("wallet"))
	go connector.Run(ctx, func(ctx context.Context, acct wallet.Account) {
		if err := store.OnAccountChange(ctx, acct); err != nil {
			logger.GetLogger().Debug().Err(err).Msg("Account change not applied")
		}
	})

	finder := search.NewSearcher(backend, cfg.Search.Debounce, cfg.Search.Limit, logger.Component("search"))
	defer finder.Stop()
	availability := search.NewAvailabilityChecker(store, cfg.Search.AvailabilityDebounce, logger.Component("search"))
	defer availability.Stop()

	var emitter interfaces.EventEmitter
	if cfg.Kafka.BrokerAddress != "" {
		kafkaEmitter := emitters.NewKafkaEmitter(cfg.Kafka.BrokerAddress, cfg.Kafka.Topic, logger.Component("kafka"))
		defer func() {
			if err := kafkaEmitter.Close(); err != nil {
				logger.GetLogger().Error().Err(err).Msg("Error closing Kafka writer")
			}
		}()
		emitter = kafkaEmitter
	}
	paymentEmitter := &events.LogEmitter{WrappedEmitter: emitter, Logger: logger.Component("payments")}

	payments := payment.NewController(chainClient, store, paymentEmitter, notifier, logger.Component("payment"))

	if cfg.Health.Addr != "" {
		monitor := health.NewMonitor(cfg.Health.CheckInterval, store.Snapshot, logger.Component("health"))
		monitor.RegisterSource(ctx, chainClient)
		server := startHealthServer(cfg.Health.Addr, monitor)
		defer shutdown(server)
		monitor.SetReady(true)
	}

	app := cli.NewApp(cli.Deps{
		Session:      store,
		Payments:     payments,
		Finder:       finder,
		Availability: availability,
		Connector:    connector,
		LoadAccount:  accountLoader(cfg.Wallet, reader, out),
		AppURL:       cfg.AppURL,
		Logger:       logger.Component("cli"),
	}, reader, out)

	logger.GetLogger().Info().
		Str("chain", chainClient.GetChainName().String()).
		Str("backend", cfg.Backend.BaseURL).
		Msg("Solva wallet started")

	app.Run(ctx)

	store.Disconnect()
}

func startHealthServer(addr string, monitor *health.Monitor) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           monitor.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.GetLogger().Info().Str("addr", addr).Msg("Health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.GetLogger().Error().Err(err).Msg("Health server failed")
		}
	}()
	return server
}

func shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.GetLogger().Error().Err(err).Msg("Error shutting down health server")
	}
}
