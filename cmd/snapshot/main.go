package main

import (
	"bytes"
	"context"
	"os"
	_ "time/tzdata"

	"github.com/woozymasta/quakemap/internal/config"
	"github.com/woozymasta/quakemap/internal/feed"
	"github.com/woozymasta/quakemap/internal/logger"
	"github.com/woozymasta/quakemap/internal/observability"
	"github.com/woozymasta/quakemap/internal/page"
	"github.com/woozymasta/quakemap/internal/quake"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile    string `short:"c" long:"config"         env:"CONFIG_FILE" description:"Path to configuration file (built-in defaults if empty)"`
	Output        string `short:"o" long:"out"            description:"Output HTML file. Writes to stdout if empty"`
	FeedURL       string `short:"f" long:"feed-url"       env:"FEED_URL"    description:"Override the earthquake feed URL"`
	AllowDegraded bool   `long:"allow-degraded"           description:"Write the page and exit 0 even when the feed failed"`
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
	if opts.FeedURL != "" {
		cfg.FeedURL = opts.FeedURL
		if err := cfg.Validate(); err != nil {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
	}

	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())

	renderer, err := page.NewRenderer(cfg, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare page renderer")
	}

	presenter := page.NewPresenter(
		feed.NewClient(cfg.FeedURL, cfg.FeedTimeout, metrics),
		quake.NewMapper(cfg),
		renderer,
		metrics,
	)

	var buf bytes.Buffer
	res, err := presenter.Render(context.Background(), &buf)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to render page")
	}
	if res.FeedErr != nil && !opts.AllowDegraded {
		log.Fatal().Err(res.FeedErr).Msg("Earthquake feed unavailable")
	}

	if opts.Output == "" {
		_, _ = os.Stdout.Write(buf.Bytes())
	} else if err := os.WriteFile(opts.Output, buf.Bytes(), 0644); err != nil {
		log.Fatal().Err(err).Str("path", opts.Output).Msg("Failed to write page")
	}

	log.Info().
		Int("features", res.Stats.Features).
		Int("markers", res.Stats.Markers).
		Int("skipped", res.Stats.Skipped).
		Bool("degraded", res.FeedErr != nil).
		Str("out", opts.Output).
		Msg("Snapshot written")
}
