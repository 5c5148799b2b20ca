package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"bakerypos/backend/internal/cache"
	"bakerypos/backend/internal/checkout"
	"bakerypos/backend/internal/config"
	"bakerypos/backend/internal/domain"
	"bakerypos/backend/internal/draft"
	"bakerypos/backend/internal/httpapi"
	"bakerypos/backend/internal/lock"
	"bakerypos/backend/internal/service"
	"bakerypos/backend/internal/store"
	"bakerypos/backend/internal/store/memory"
	pgstore "bakerypos/backend/internal/store/postgres"
)

const configKey = "config"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("could not read .env")
	}
	if err := newApp().Run(os.Args); err != nil {
		log.WithError(err).Fatal("bakerypos stopped")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "bakerypos",
		Usage: "bakery point-of-sale backend",
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := setupLogging(cfg.LogLevel); err != nil {
				return err
			}
			c.App.Metadata = map[string]any{configKey: cfg}
			return nil
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "migrate", Usage: "apply database migrations before serving"},
				},
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: migrate,
			},
			{
				Name:  "import-items",
				Usage: "load a catalog sheet (csv or xlsx) into the inventory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true},
					&cli.StringFlag{Name: "format", Usage: "csv or xlsx, defaults to the file extension"},
					&cli.BoolFlag{Name: "skip-duplicates", Usage: "leave items that already exist untouched"},
				},
				Action: importItems,
			},
			{
				Name:  "export-items",
				Usage: "write the inventory as a catalog sheet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file, stdout when empty"},
					&cli.StringFlag{Name: "format", Usage: "csv or xlsx, defaults to the file extension"},
				},
				Action: exportItems,
			},
		},
	}
}

func configFrom(c *cli.Context) config.Config {
	cfg, _ := c.App.Metadata[configKey].(config.Config)
	return cfg
}

func setupLogging(level string) error {
	log.SetFormatter(&log.JSONFormatter{})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}

type closers []func() error

func (cs closers) closeAll() {
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i](); err != nil {
			log.WithError(err).Warn("close error")
		}
	}
}

// openRepository refuses to fall back to memory when DATABASE_URL is set.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, *pgstore.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	log.Info("repository: postgres")
	return pg, pg, nil
}

type backends struct {
	drafts      checkout.DraftStore
	locker      lock.Locker
	reports     cache.ReportCache
	suggestions cache.SuggestionCache
	client      *redis.Client
}

// sessionBackends shares one redis client across drafts, locks and caches when
// REDIS_ADDR is reachable and runs everything in process otherwise.
func sessionBackends(ctx context.Context, cfg config.Config) backends {
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err == nil {
			log.Info("drafts, locks and caches: redis")
			return backends{
				drafts:      draft.NewRedisStore(client, cfg.DraftTTL()),
				locker:      lock.NewRedisLocker(client),
				reports:     cache.NewRedisReportCache(client),
				suggestions: cache.NewRedisSuggestionCache(client),
				client:      client,
			}
		}
		log.WithError(err).Warn("redis unavailable, keeping drafts and locks in process")
	}
	return backends{
		drafts:      draft.NewMemoryStore(),
		locker:      lock.NewLocalLocker(),
		reports:     cache.NoopReportCache{},
		suggestions: cache.NoopSuggestionCache{},
	}
}

func serve(c *cli.Context) error {
	cfg := configFrom(c)
	if err := validateSecurityConfig(cfg); err != nil {
		return fmt.Errorf("invalid security configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	var cleanup closers
	defer func() { cleanup.closeAll() }()

	repo, pg, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if pg != nil {
		cleanup = append(cleanup, pg.Close)
		if c.Bool("migrate") {
			if err := pg.Migrate(); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
	}

	b := sessionBackends(ctx, cfg)
	if b.client != nil {
		cleanup = append(cleanup, b.client.Close)
	}

	orchestrator := checkout.NewOrchestrator(b.drafts, repo, checkout.Options{
		Timeout:     cfg.CheckoutTimeout(),
		PhoneRegion: cfg.PhoneRegion,
		Locker:      b.locker,
	})
	svc := service.New(repo, b.drafts, orchestrator, b.reports, service.Options{
		Location:      cfg.Location(),
		ReportTTL:     cfg.ReportCacheTTL(),
		Suggestions:   b.suggestions,
		SuggestionTTL: cfg.SuggestionCacheTTL(),
		Locker:        b.locker,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.CheckoutTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Address()).Info("bakery POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-errs:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
	log.Info("server stopped")
	return nil
}

func migrate(c *cli.Context) error {
	cfg := configFrom(c)
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required to migrate")
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

// cliContext acts as an admin so catalog commands pass the service's role check.
func cliContext(ctx context.Context) context.Context {
	return service.WithActor(ctx, domain.Actor{Username: "cli", Role: "admin"})
}

func newCatalogService(ctx context.Context, cfg config.Config) (*service.Service, closers, error) {
	repo, pg, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	var cleanup closers
	if pg != nil {
		cleanup = append(cleanup, pg.Close)
	}
	drafts := draft.NewMemoryStore()
	svc := service.New(repo, drafts, nil, nil, service.Options{Location: cfg.Location()})
	return svc, cleanup, nil
}

func importItems(c *cli.Context) error {
	path := c.String("file")
	format := sheetFormat(c.String("format"), path)

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx := cliContext(c.Context)
	svc, cleanup, err := newCatalogService(ctx, configFrom(c))
	if err != nil {
		return err
	}
	defer cleanup.closeAll()

	summary, err := svc.ImportItems(ctx, f, format, c.Bool("skip-duplicates"))
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"inserted":   summary.Inserted,
		"updated":    summary.Updated,
		"duplicates": summary.Duplicates,
		"skipped":    summary.Skipped,
	}).Info("items imported")
	return nil
}

func exportItems(c *cli.Context) error {
	path := c.String("out")
	format := sheetFormat(c.String("format"), path)

	var out io.Writer = c.App.Writer
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	ctx := cliContext(c.Context)
	svc, cleanup, err := newCatalogService(ctx, configFrom(c))
	if err != nil {
		return err
	}
	defer cleanup.closeAll()

	return svc.ExportItems(ctx, out, format)
}

// sheetFormat prefers an explicit format and otherwise reads the extension.
func sheetFormat(explicit string, path string) string {
	if explicit = strings.ToLower(strings.TrimSpace(explicit)); explicit != "" {
		return explicit
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return service.FormatXLSX
	}
	return service.FormatCSV
}
