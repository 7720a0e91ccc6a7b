package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Lakyn80/covertor-webp-lukiora/cmd/migrate"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/admission"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/archive"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/auth"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/config"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/converter"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/quota"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/redisholder"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/repository/storage"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/transport/handler"
	"github.com/Lakyn80/covertor-webp-lukiora/internal/transport/router"
)

type App struct {
	HttpServer *http.Server

	archiver *archive.Uploader
	holder   *redisholder.Holder
}

func New(cfg *config.Config) (*App, error) {
	ctx := context.Background()

	if err := migrate.Migrate(cfg.Database.DSN, migrate.Migrations); err != nil {
		return nil, err
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	a := &App{}

	var store quota.Store
	if cfg.Convert.QuotaStore == "redis" {
		holder, err := redisholder.Build(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("build redis holder: %w", err)
		}
		a.holder = holder
		store = quota.NewRedisStore("webpify:quota", holder)
	} else {
		store = quota.NewMemoryStore()
	}

	ledger := quota.NewLedger(store, repo, cfg.Convert.FreeLimit)
	gate := admission.NewGate(cfg.Convert.MaxConcurrent, cfg.Convert.AcquireTimeout*time.Second)

	var archiver converter.Archiver
	if cfg.Archive.Enabled {
		up, err := archive.NewUploader(&cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("start archive uploader: %w", err)
		}
		a.archiver = up
		archiver = up
	}

	svc := converter.New(ledger, gate, archiver, cfg.Convert.DefaultQuality, cfg.Convert.PNGOpaqueQuality)
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpires*time.Hour)

	h := handler.New(svc, repo, issuer, cfg)
	r := router.NewRouter(h)

	a.HttpServer = &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return a, nil
}

func (a *App) Run() error {
	log.Info().Str("addr", a.HttpServer.Addr).Msg("starting server")
	return a.HttpServer.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.HttpServer.Shutdown(ctx)
	if a.archiver != nil {
		a.archiver.Close()
	}
	if a.holder != nil {
		_ = a.holder.Close()
	}
	return err
}
