package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/logger"
	"github.com/woozymasta/quakemap/internal/observability"
	"github.com/woozymasta/quakemap/internal/tiles"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"       env:"CONFIG_FILE"         description:"Path to configuration file (built-in defaults if empty)"`
	AccessToken string   `short:"t" long:"access-token" env:"MAPBOX_ACCESS_TOKEN" description:"Tile provider access token"`
	Limit       []string `short:"l" long:"limit"        env:"LIMIT_LAYERS"        description:"Limit warming to specific base layer keys"`
	Concurrency int      `short:"p" long:"concurrency"  env:"CONCURRENCY"         description:"Concurrency"      default:"16"`
	ZoomLimit   int      `short:"z" long:"zoom-limit"   env:"ZOOM_LIMIT"          description:"Tiles zoom limit" default:"5"`
}

func main() {
	_ = godotenv.Load()

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if opts.AccessToken != "" {
		cfg.Tiles.AccessToken = opts.AccessToken
	}

	proxy, err := tiles.NewProxy(cfg, clockwork.NewRealClock(), observability.NewMetricsWithRegistry(prometheus.NewRegistry()))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare tile proxy")
	}
	if !proxy.HasToken() {
		log.Fatal().Msg("Tile access token is required (MAPBOX_ACCESS_TOKEN)")
	}

	// Filter layers if limit is set
	layers := make([]string, 0, len(cfg.BaseLayers))
	if len(opts.Limit) > 0 {
		seen := make(map[string]bool)
		for _, key := range opts.Limit {
			if seen[key] {
				continue
			}
			seen[key] = true

			if _, ok := cfg.Layer(key); !ok {
				log.Error().Str("layer", key).Msg("Layer specified in --limit not found in configuration")
				continue
			}
			layers = append(layers, key)
		}
	} else {
		for _, l := range cfg.BaseLayers {
			layers = append(layers, l.Key)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Strs("layers", layers).
		Int("zoom", opts.ZoomLimit).
		Int("concurrency", opts.Concurrency).
		Msg("Starting tile cache warm-up")

	failed := false
	for _, key := range layers {
		stats, err := proxy.Warm(ctx, key, opts.ZoomLimit, opts.Concurrency)
		if err != nil {
			log.Error().Err(err).Str("layer", key).Msg("Warm-up interrupted")
			os.Exit(1)
		}
		if stats.Failed > 0 {
			failed = true
		}
	}

	if failed {
		log.Warn().Msg("Warm-up finished with failed tiles")
		os.Exit(1)
	}
	log.Info().Msg("Warm-up finished successfully")
}
