package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aerobaza.org/internal/audit"
	"aerobaza.org/internal/auth"
	"aerobaza.org/internal/billing"
	"aerobaza.org/internal/config"
	"aerobaza.org/internal/httpapi"
	"aerobaza.org/internal/obs"
	"aerobaza.org/internal/ratelimit"
	"aerobaza.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AEROBAZA_COMMIT"))

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("missing DSN: set AEROBAZA_PG_DSN")
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	sessionCodec, err := auth.NewSessionCodec(cfg.SessionSecret, auth.WithTTL(cfg.SessionTTL))
	if err != nil {
		log.Fatalf("session codec: %v", err)
	}
	stepUpCodec, err := auth.NewStepUpCodec(cfg.BillingSecret, auth.WithTTL(cfg.StepUpTTL))
	if err != nil {
		log.Fatalf("step-up codec: %v", err)
	}

	guard := auth.NewGuard(sessionCodec, store)
	limiter := ratelimit.NewLimiter()
	defer limiter.Close()

	api := httpapi.New(httpapi.Deps{
		Guard:         guard,
		BillingGuard:  auth.NewBillingGuard(guard, stepUpCodec),
		Authn:         auth.NewAuthenticator(store, store, sessionCodec),
		PINs:          auth.NewPINService(store, stepUpCodec),
		Reports:       billing.NewService(store),
		Audit:         audit.NewWriter(store),
		Limiter:       limiter,
		ReadyProbe:    httpapi.ReadyProbe{DB: store.DB()},
		Version:       version,
		SessionTTL:    cfg.SessionTTL,
		SecureCookies: cfg.SecureCookies,
		RateWindow:    cfg.RateWindow,
		RateMax:       cfg.RateMax,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting aerobaza-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
