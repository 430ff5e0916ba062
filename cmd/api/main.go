package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-payments/internal/cache"
	"storefront-payments/internal/client"
	"storefront-payments/internal/config"
	"storefront-payments/internal/gateway"
	"storefront-payments/internal/handler"
	"storefront-payments/internal/logger"
	"storefront-payments/internal/notify"
	"storefront-payments/internal/payment"
	"storefront-payments/internal/rates"
	"storefront-payments/internal/repository"
	"storefront-payments/internal/server"
	"storefront-payments/internal/service"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	memoryCacheSize = 1024
	certCacheTTL    = 24 * time.Hour
)

func main() {
	// load .env into os.Environ
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found (ok in prod)")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to parse config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	db, err := client.InitDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if err := client.Migrate(db); err != nil {
		return err
	}

	store := cache.NewMemoryStore(memoryCacheSize, certCacheTTL)
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		store = cache.NewRedisStore(redisClient, "storefront:")
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.NSQ.Address != "" {
		producer, err := notify.NewNSQProducer(cfg.NSQ.Address)
		if err != nil {
			return err
		}
		defer producer.Stop()
		notifier = notify.NewNSQNotifier(producer, cfg.NSQ.Topic)
	}
	dispatcher := notify.NewDispatcher(notifier, 10*time.Second, log)

	quotes := rates.NewProvider(client.NewCoingeckoClient(&cfg.Rates), store, cfg.Rates, log)

	orderRepo := repository.NewOrderRepository(db)
	cartRepo := repository.NewCartRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)

	paypalClient := client.NewPaypalClient(&cfg.Paypal)
	btc, err := gateway.NewBitcoinAdapter(cfg.Bitcoin, cfg.Store.Currency, quotes, repository.NewBitcoinAddressRepository(db))
	if err != nil {
		return err
	}
	registry := gateway.NewRegistry(
		gateway.NewPayPalAdapter(cfg.Paypal, paypalClient, gateway.NewCertFetcher(cfg.Paypal.Timeout, store, certCacheTTL)),
		btc,
		gateway.NewMoneroAdapter(cfg.Monero, cfg.Store.Currency, cfg.BaseURL, quotes, client.NewMoneroClient(&cfg.Monero)),
	)

	machine := payment.NewStateMachine(orderRepo)
	processor := payment.NewProcessor(db, registry, orderRepo, ledgerRepo, cartRepo, machine, dispatcher, log)

	assembler := service.NewOrderAssembler(
		cfg.Store.Currency,
		cartRepo,
		repository.NewProductRepository(db),
		repository.NewShippingRepository(db),
		orderRepo,
	)
	checkoutService := service.NewCheckoutService(db, assembler, registry, machine, orderRepo, log)
	paypalService := service.NewPaypalService(paypalClient, orderRepo, processor, log)

	srv := server.NewServer(cfg, log, server.Handlers{
		Paypal:  handler.NewPaypalHandler(checkoutService, paypalService, processor),
		Bitcoin: handler.NewBitcoinHandler(checkoutService, processor),
		Monero:  handler.NewMoneroHandler(checkoutService, processor, cfg.Monero.PaymentWindow),
		Order:   handler.NewOrderHandler(checkoutService),
	})

	serverAddr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", zap.String("addr", serverAddr), zap.String("environment", cfg.Environment.Name))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigChan:
	}
	log.Info("signal received, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		log.Warn("pending notifications dropped", zap.Error(err))
	}
	return nil
}
