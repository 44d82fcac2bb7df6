package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ferris-elf/ferris-elf"
	"github.com/ferris-elf/ferris-elf/api"
	"github.com/ferris-elf/ferris-elf/bench"
	"github.com/ferris-elf/ferris-elf/db"
	"github.com/ferris-elf/ferris-elf/inputs"
	"github.com/ferris-elf/ferris-elf/integrations/discord"
	"github.com/ferris-elf/ferris-elf/internal/config"
	"github.com/ferris-elf/ferris-elf/sandbox"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

var confPath = flag.String("config", "./config.toml", "Configuration file path")

func main() {
	flag.Parse()
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Could not load .env", slog.Any("err", err))
	}

	if err := config.Load(*confPath); err != nil {
		slog.Error("Could not load config", slog.Any("err", err))
		os.Exit(1)
	}
	if err := ferriself.InitLogger(config.C.Common.Debug, config.C.Common.LogDir); err != nil {
		slog.Error("Could not initialize logging", slog.Any("err", err))
		os.Exit(1)
	}

	if err := run(); err != nil {
		slog.Error("Shutting down with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "Starting ferris-elf", slog.String("version", ferriself.Version), slog.Int("year", config.C.Common.Year))

	store, err := db.NewPSQL(ctx, config.C.Database.String())
	if err != nil {
		return ferriself.WrapError(err, "Could not connect to database")
	}
	defer store.Close()

	box, err := sandbox.New(config.C.Bench.RunnerDir)
	if err != nil {
		return ferriself.WrapError(err, "Could not create sandbox")
	}
	defer box.Close()

	memory, err := humanize.ParseBytes(config.C.Bench.MemoryLimit)
	if err != nil {
		return ferriself.WrapError(err, "Invalid memory limit")
	}
	limits := ferriself.RunLimits{
		CPUSet:      config.C.Bench.CPUSet,
		MemoryBytes: int64(memory),
		Timeout:     time.Duration(config.C.Bench.TimeoutSeconds) * time.Second,
	}

	fixtures := inputs.NewStore(config.C.Inputs.Dir, config.C.Inputs.SessionTokens)
	pipeline := bench.NewPipeline(store, box, fixtures, config.C.Common.Year, limits)
	handler := bench.NewHandler(pipeline)
	rerun := bench.NewCoordinator(handler, store)

	bot, err := discord.NewBot(config.C.Discord.Token, store, handler, rerun,
		fixtures, config.C.Common.Year, config.C.Discord.AdminIDs, config.C.Discord.TrustedIDs)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    config.C.Common.APIAddress,
		Handler: api.New(store, handler).Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return handler.Run(gctx)
	})
	g.Go(func() error {
		if err := bot.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return bot.Close()
	})
	g.Go(func() error {
		slog.InfoContext(gctx, "Serving API", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}
