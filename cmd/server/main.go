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
	_ "time/tzdata"

	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/feed"
	"github.com/woozymasta/quakemap/internal/logger"
	"github.com/woozymasta/quakemap/internal/observability"
	"github.com/woozymasta/quakemap/internal/page"
	"github.com/woozymasta/quakemap/internal/quake"
	"github.com/woozymasta/quakemap/internal/server"
	"github.com/woozymasta/quakemap/internal/tiles"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile      string        `short:"c" long:"config"           env:"CONFIG_FILE"         description:"Path to configuration file (built-in defaults if empty)"`
	Addr            string        `short:"a" long:"addr"             env:"LISTEN_ADDRESS"      description:"Address to listen on"             default:"0.0.0.0"`
	Port            int           `short:"p" long:"port"             env:"LISTEN_PORT"         description:"Port to listen on"                default:"8080"`
	FeedURL         string        `short:"f" long:"feed-url"         env:"FEED_URL"            description:"Override the earthquake feed URL"`
	AccessToken     string        `short:"t" long:"access-token"     env:"MAPBOX_ACCESS_TOKEN" description:"Tile provider access token"`
	RequireToken    bool          `long:"require-token"              env:"REQUIRE_TOKEN"       description:"Refuse to start without a tile access token"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout"           env:"SHUTDOWN_TIMEOUT"    description:"Graceful shutdown timeout"        default:"10s"`
}

func main() {
	// credentials may come from a local .env file
	_ = godotenv.Load()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	// Setup Logging
	opts.Logger.Setup()

	// Load Config
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if opts.FeedURL != "" {
		cfg.FeedURL = opts.FeedURL
	}
	if opts.AccessToken != "" {
		cfg.Tiles.AccessToken = opts.AccessToken
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if opts.RequireToken && cfg.Tiles.AccessToken == "" {
		log.Fatal().Msg("Tile access token is required but not set (MAPBOX_ACCESS_TOKEN)")
	}

	clock := clockwork.NewRealClock()
	metrics := observability.NewMetrics()

	renderer, err := page.NewRenderer(cfg, clock)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare page renderer")
	}

	proxy, err := tiles.NewProxy(cfg, clock, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare tile proxy")
	}

	presenter := page.NewPresenter(
		feed.NewClient(cfg.FeedURL, cfg.FeedTimeout, metrics),
		quake.NewMapper(cfg),
		renderer,
		metrics,
	)

	srvCtx := server.NewServerContext(cfg, presenter, proxy)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.FeedTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().
			Str("addr", listenAddr).
			Str("feed", cfg.FeedURL).
			Bool("tile_token", proxy.HasToken()).
			Msg("Web server started")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}
