// Command server runs the HTTP service. Every failure that escapes a handler,
// whether a panic or an error attached with c.Error, is answered with a 500
// body rendered in the format the client accepts (HTML, JSON, XML or plain
// text) and, when incidents are enabled, stored in SQLite for later lookup.
//
// Configuration comes from the environment, optionally seeded by a .env file
// in the working directory.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-errorcatcher/internal/config"
	"github.com/tbourn/go-errorcatcher/internal/errorhandler"
	httpapi "github.com/tbourn/go-errorcatcher/internal/http"
	"github.com/tbourn/go-errorcatcher/internal/http/middleware"
	"github.com/tbourn/go-errorcatcher/internal/observability"
	"github.com/tbourn/go-errorcatcher/internal/render"
	"github.com/tbourn/go-errorcatcher/internal/repo"
	"github.com/tbourn/go-errorcatcher/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("load .env")
	}
	cfg := config.MustLoad()

	sysutil.ConfigureLogger(os.Stdout, cfg.LogPretty)
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Build{
		Version:     sysutil.FirstNonEmpty(version, "dev"),
		Environment: cfg.GinMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	hopts := []errorhandler.Option{errorhandler.WithExposeDetails(cfg.Errors.ExposeDetails)}

	var db *gorm.DB
	if cfg.IncidentsEnabled {
		db, err = repo.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open sqlite")
		}
		if err := repo.AutoMigrate(db); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		hopts = append(hopts, errorhandler.WithRecorder(repo.IncidentRecorder{DB: db}))
	}

	catcher, err := middleware.NewErrorCatcher(
		middleware.DefaultFormats(),
		render.DefaultContainer(),
		errorhandler.New(hopts...),
		middleware.WithAttachedErrors(cfg.Errors.CatchAttached),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("error catcher")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, catcher, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("mode", cfg.GinMode).
			Bool("expose_details", cfg.Errors.ExposeDetails).
			Bool("incidents", cfg.IncidentsEnabled).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("listen")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
	if err := repo.Close(db); err != nil {
		log.Warn().Err(err).Msg("close sqlite")
	}
}
