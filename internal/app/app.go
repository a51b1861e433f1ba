// Package app wires configuration, storage, adapters, the checkout
// orchestrator and the HTTP server into a running service.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storefront-go/checkout/internal/backend"
	"github.com/storefront-go/checkout/internal/domain/checkout"
	"github.com/storefront-go/checkout/internal/domain/coupon"
	"github.com/storefront-go/checkout/internal/gateway/razorpay"
	"github.com/storefront-go/checkout/internal/httpapi"
	"github.com/storefront-go/checkout/internal/storage/postgres"
	"github.com/storefront-go/checkout/pkg/health"
	"github.com/storefront-go/checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the
// reconciliation worker, and handles graceful shutdown. It is the single
// wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations for the reconciliation journal.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Coupon registry from configuration.
	rules := make([]coupon.Rule, 0, len(cfg.Coupons))
	for code, amount := range cfg.Coupons {
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return errors.Wrapf(err, "coupon %q discount %q", code, amount)
		}
		rules = append(rules, coupon.Rule{Code: code, Discount: d})
	}

	// External collaborators.
	backendClient := backend.NewClient(cfg.Backend.URL, cfg.Backend.Token, cfg.Backend.Timeout)
	gateway := razorpay.New(razorpay.Config{
		KeyID:         cfg.Gateway.KeyID,
		KeySecret:     cfg.Gateway.KeySecret,
		WebhookSecret: cfg.Gateway.WebhookSecret,
		BaseURL:       cfg.Gateway.BaseURL,
	})
	journal := postgres.NewJournal(pool)
	confirmations := httpapi.NewConfirmationStore(cfg.Checkout.ConfirmationRetention)

	// Checkout orchestrator.
	svc := checkout.NewService(
		checkout.Config{
			Currency:         cfg.Gateway.Currency,
			Merchant:         cfg.Gateway.Merchant,
			GatewayTimeout:   cfg.Checkout.GatewayTimeout,
			SessionRetention: cfg.Checkout.SessionRetention,
		},
		checkout.Deps{
			Coupons:   coupon.NewRegistryValidator(coupon.NewMemoryRegistry(rules)),
			Carts:     backendClient,
			Orders:    backendClient,
			Payments:  backendClient,
			Gateway:   gateway,
			CartClear: backendClient,
			Navigator: confirmations,
			Journal:   journal,
		},
		m.TracerProvider(), m.MeterProvider(),
	)

	worker := checkout.NewRecorderWorker(journal, backendClient, cfg.Worker.Interval, cfg.Worker.Batch)

	// HTTP surface: health endpoints + checkout API on one server.
	h := httpapi.NewHandler(svc, gateway, confirmations)
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return worker.Run(gctx)
	})

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	// Graceful shutdown: on cancellation flip readiness, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}
