package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/e-tracker/tasktrack/internal/clock"
	"github.com/e-tracker/tasktrack/internal/config"
	"github.com/e-tracker/tasktrack/internal/db"
	"github.com/e-tracker/tasktrack/internal/repository"
	"github.com/e-tracker/tasktrack/internal/server"
	"github.com/e-tracker/tasktrack/internal/viewmodel"
)

func main() {
	configPathFlag := flag.String("config", "", "config file path")
	dbPathFlag := flag.String("db", "", "sqlite db path")
	addrFlag := flag.String("addr", "", "http listen address")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg("no .env file found")
	}

	cfgPath, err := resolveConfigPath(*configPathFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve config path")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	if *dbPathFlag != "" {
		cfg.DBPath = *dbPathFlag
	}
	if cfg.DBPath == "" {
		cfg.DBPath = config.DefaultDBPath(cfgPath)
	}
	if *addrFlag != "" {
		cfg.HTTPAddr = *addrFlag
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		logger.Fatal().Err(err).Msg("save config")
	}

	if err := config.EnsureDir(cfg.DBPath); err != nil {
		logger.Fatal().Err(err).Msg("ensure db dir")
	}

	sqlDB, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer sqlDB.Close()

	store := db.NewStore(sqlDB, logger, clock.System)
	repo := repository.New(store)
	vm := viewmodel.New(repo, logger, clock.System)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vm.Start(ctx)
	defer vm.Close()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.New(vm, repo, logger, clock.System).Engine(),
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBPath).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}
