// README: Entry point; loads config, wires services, starts HTTP server, dispatch workers and background tickers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"fitdash/internal/config"
	httptransport "fitdash/internal/http"
	"fitdash/internal/infra"
	"fitdash/internal/modules/dispatch"
	"fitdash/internal/modules/location"
	"fitdash/internal/modules/order"
	"fitdash/internal/modules/payment"
	"fitdash/internal/modules/pricing"
	"fitdash/internal/modules/rating"
	"fitdash/internal/modules/seller"
	"fitdash/internal/modules/user"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	infra.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		log.Fatal().Msg("FITDASH_FIREBASE_PROJECT_ID is required")
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.Credentials, cfg.Firebase.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("firebase init")
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		log.Fatal().Err(err).Msg("firebase auth init")
	}
	var tracker location.Tracker
	if cfg.Firebase.DatabaseURL != "" {
		rtdb, err := infra.NewRTDBWriter(ctx, app)
		if err != nil {
			log.Fatal().Err(err).Msg("firebase rtdb init")
		}
		tracker = rtdb
	} else {
		log.Warn().Msg("FITDASH_FIREBASE_DB_URL not set; live tracking mirror disabled")
	}

	if err := infra.Migrate(cfg.DB.DSN, cfg.DB.Migrations); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}
	db, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db init")
	}
	defer db.Close()

	rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init")
	}
	defer rdb.Close()

	if cfg.Payment.KeyID == "" || cfg.Payment.Secret == "" {
		log.Warn().Msg("payment gateway credentials not set; online payments will fail")
	}

	pricingSvc := pricing.NewService(cfg.Location, cfg.DeliveryFee)
	orderStore := order.NewStore()
	orderSvc := order.NewService(db, orderStore, pricingSvc, cfg.DB.TxTimeout)
	ratingSvc := rating.NewService(db, orderStore)
	paymentSvc := payment.NewService(db, orderStore,
		payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.Secret),
		cfg.Payment.KeyID, cfg.Payment.Secret)
	locationSvc := location.NewService(db, location.NewRedisGeo(rdb), tracker)
	queue := dispatch.NewRedisQueue(rdb)
	dispatchSvc := dispatch.NewService(db, orderStore, queue, cfg.Dispatch)
	pool := dispatch.NewPool(queue, dispatchSvc, cfg.Dispatch)
	sellerSvc := seller.NewService(db, seller.NewStore())

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httptransport.NewServer(httptransport.ServerDeps{
			Orders:   orderSvc,
			Ratings:  ratingSvc,
			Payments: paymentSvc,
			Location: locationSvc,
			Dispatch: dispatchSvc,
			Roles:    user.NewDirectory(db),
			Verifier: verifier,
			Health:   db,
		}).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error {
		dispatchSvc.RunRelayTicker(gctx)
		return nil
	})
	g.Go(func() error {
		sellerSvc.RunExpiryTicker(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("fitdash-api stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("fitdash-api stopped")
}
