// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/gewnthar/transit-feeds/cache"
	"github.com/gewnthar/transit-feeds/config"
	"github.com/gewnthar/transit-feeds/database"
	"github.com/gewnthar/transit-feeds/handlers"
	"github.com/gewnthar/transit-feeds/models"
	"github.com/gewnthar/transit-feeds/scraper"
	"github.com/gewnthar/transit-feeds/services"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "transit-feeds",
		Usage: "Loads GTFS feeds of several cities into SQL and serves them over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to the YAML config (defaults to " + defaultConfigPath + " when present)",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			refreshCommand(),
			checkConfigCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API, refreshing on the configured interval",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "init-schema", Usage: "create missing tables before starting"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx, c.String("config"), c.Bool("init-schema"), nil)
			if err != nil {
				return err
			}
			defer a.store.Close()

			waitScheduler := func() {}
			if a.cfg.Refresh.Interval > 0 {
				waitScheduler = a.updates.Start(ctx, a.cfg.Refresh.Interval, false)
			}

			admin := handlers.NewAdminHandler(ctx, a.updates, a.store)
			router := handlers.NewRouter(handlers.NewTransitHandler(a.query), admin)
			server := &http.Server{
				Addr:              ":" + a.cfg.Server.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", server.Addr).Msg("Server starting")
				errCh <- server.ListenAndServe()
			}()

			var serveErr error
			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					serveErr = fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
				log.Info().Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("Server shutdown did not complete")
				}
			}

			// Background refreshes hold pool connections; let them finish before store.Close.
			stop()
			admin.Wait()
			waitScheduler()
			return serveErr
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "refresh cached feeds and destination tables",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "refetch even when the cache is fresh"},
			&cli.StringFlag{Name: "city", Usage: "refresh a single city by name"},
			&cli.StringSliceFlag{Name: "table", Usage: "only replace these tables (routes, trips, stops, stop_times)"},
			&cli.DurationFlag{Name: "every", Usage: "keep running, refreshing on this interval"},
			&cli.BoolFlag{Name: "init-schema", Usage: "create missing tables before refreshing"},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tables, err := parseTables(c.StringSlice("table"))
			if err != nil {
				return err
			}

			a, err := setup(ctx, c.String("config"), c.Bool("init-schema"), tables)
			if err != nil {
				return err
			}
			defer a.store.Close()

			force := c.Bool("force")
			if city := c.String("city"); city != "" {
				report, err := a.updates.RefreshNamed(ctx, city, force)
				if err != nil {
					return err
				}
				logReport(report)
				return nil
			}

			interval := a.cfg.Refresh.Interval
			if c.IsSet("every") {
				interval = c.Duration("every")
			}
			if interval > 0 {
				err := a.updates.RunEvery(ctx, interval, force)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			reports, err := a.updates.RefreshAll(ctx, force)
			if err != nil {
				return err
			}
			for _, r := range reports {
				logReport(r)
			}
			return nil
		},
	}
}

func checkConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-config",
		Usage: "load and validate the config and the cities file",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String("config"))
			if err != nil {
				return err
			}
			cities, err := config.NewCityStore(cfg.Cache.CitiesFile).Load()
			if err != nil {
				return err
			}
			for _, d := range cities {
				log.Info().
					Int64("city_id", d.CityID).
					Str("city", d.CityName).
					Str("url", d.URL).
					Bool("direct_link", d.IsDirectLink()).
					Msg("City configured")
			}
			log.Info().
				Str("driver", cfg.Database.Driver).
				Str("cache_root", cfg.Cache.Root).
				Int("max_age_days", cfg.DataFreshness.MaxAgeDays).
				Msg("Configuration is valid")
			return nil
		},
	}
}

type application struct {
	cfg     config.Config
	store   *database.Store
	updates *services.DataUpdateService
	query   *services.QueryService
}

// parseTables turns the --table values into table kinds. No values means every kind.
func parseTables(names []string) ([]models.TableKind, error) {
	var tables []models.TableKind
	for _, name := range names {
		kind, err := models.ParseTableKind(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		tables = append(tables, kind)
	}
	return tables, nil
}

// setup loads the configuration and wires the store and the services. tables restricts
// refreshes to those kinds; nil means every kind.
func setup(ctx context.Context, configPath string, initSchema bool, tables []models.TableKind) (*application, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	layout := cache.NewLayout(cfg.Cache.Root)
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	cities := config.NewCityStore(cfg.Cache.CitiesFile)
	if _, err := cities.Load(); err != nil {
		return nil, err
	}

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if initSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}

	updates := services.NewDataUpdateService(services.DataUpdateDeps{
		Layout:     layout,
		Cities:     cities,
		Tracker:    cache.NewTracker(layout, cfg.DataFreshness.MaxAgeDays),
		Resolver:   scraper.NewLinkResolver(cfg.Fetch.PageTimeout),
		Downloader: scraper.NewDownloader(layout, cfg.Fetch.DownloadTimeout),
		Extractor:  scraper.NewExtractor(layout),
		Projector:  scraper.NewProjector(layout),
		Replacer:   database.NewTableReplacer(store),
		CitySync:   store,
		Tables:     tables,
	})

	return &application{
		cfg:     cfg,
		store:   store,
		updates: updates,
		query:   services.NewQueryService(cities, store),
	}, nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("error loading configuration: %w", err)
	}
	setupLogging(cfg.Logging)
	log.Info().Str("path", path).Str("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("Configuration loaded")
	return cfg, nil
}

func setupLogging(cfg config.LoggingConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

func logReport(r services.CityReport) {
	event := log.Info()
	if !r.OK() {
		event = log.Warn()
	}
	for _, e := range r.Errors {
		event = event.AnErr(string(e.Step), e)
	}
	event.
		Str("city", r.City).
		Bool("skipped", r.Skipped).
		Bool("downloaded", r.Downloaded).
		Int("replaced", len(r.Replaced)).
		Int("missing", len(r.Missing)).
		Msg("City refresh report")
}
