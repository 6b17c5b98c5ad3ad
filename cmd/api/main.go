package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"nexushub.org/internal/auth"
	"nexushub.org/internal/config"
	"nexushub.org/internal/crm"
	"nexushub.org/internal/httpapi"
	"nexushub.org/internal/identity"
	"nexushub.org/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(50)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(15 * time.Minute)
	}

	catalog := auth.DefaultCatalog(auth.WithUnknownRoleHook(obs.UnknownRole))
	hasher := auth.NewHasher(cfg.Argon2)
	tokens, err := auth.NewTokens([]byte(cfg.JWTSecret),
		auth.WithIssuer(cfg.Issuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	guard := auth.NewGuard(catalog, tokens)

	identityStore := identity.NewPGStore(db)
	crmStore := crm.NewPGStore(db)

	idSvc := identity.NewService(identityStore.Users(), identityStore.Tenants(), hasher, tokens)
	crmSvc := crm.NewService(crmStore.Contacts(), crmStore.Companies(), catalog)

	api := httpapi.New(httpapi.Options{
		Guard:        guard,
		Identity:     idSvc,
		CRM:          crmSvc,
		ReadyProbe:   httpapi.ReadyProbe{DB: db},
		Version:      version,
		RatePerSec:   cfg.RateLimitPerSecond,
		RateBurst:    cfg.RateLimitBurst,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting nexushub-api %s on %s", version, srv.Addr)

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
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
