package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/RaikyD/isp-order-intake/internal/application"
	"github.com/RaikyD/isp-order-intake/internal/catalog"
	"github.com/RaikyD/isp-order-intake/internal/config"
	"github.com/RaikyD/isp-order-intake/internal/coverage"
	"github.com/RaikyD/isp-order-intake/internal/domain"
	"github.com/RaikyD/isp-order-intake/internal/fakesales"
	"github.com/RaikyD/isp-order-intake/internal/fanout"
	"github.com/RaikyD/isp-order-intake/internal/kafka"
	"github.com/RaikyD/isp-order-intake/internal/logger"
	"github.com/RaikyD/isp-order-intake/internal/notify"
	"github.com/RaikyD/isp-order-intake/internal/orderform"
	"github.com/RaikyD/isp-order-intake/internal/repository"
	"github.com/RaikyD/isp-order-intake/internal/ziplookup"
	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds everything the commands share.
type app struct {
	cfg          *config.Config
	catalog      *catalog.Catalog
	matcher      *coverage.Matcher
	providers    *application.ProvidersService
	availability *application.AvailabilityService
	validator    *orderform.Validator
	orders       *application.OrdersService
	push         *repository.PushRepository
	fakeSales    *fakesales.Generator
	scheduler    *fakesales.Scheduler

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

func newSlack(cfg *config.Config) *notify.SlackNotifier {
	return notify.NewSlackNotifier(cfg.SlackWebhookURL, &http.Client{Timeout: 10 * time.Second})
}

func newFakeSales(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, slack *notify.SlackNotifier) *fakesales.Generator {
	var text fakesales.TextGenerator
	gemini, err := fakesales.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	switch {
	case err != nil:
		logger.Warn("gemini unavailable, fake sales use fallback data", "err", err)
	case gemini != nil:
		text = gemini
	}
	return fakesales.NewGenerator(cat, text, slack)
}

func newMailer(cfg *config.Config) notify.Mailer {
	switch cfg.EmailDriver {
	case "sendgrid":
		if cfg.SendGridKey != "" {
			return notify.NewSendGridMailer(cfg.SendGridKey)
		}
	case "postmark":
		if cfg.PostmarkToken != "" {
			return notify.NewPostmarkMailer(cfg.PostmarkToken)
		}
	}
	return nil
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	a.catalog = cat

	pool, err := pgxpool.New(ctx, cfg.DBString)
	if err != nil {
		return nil, fmt.Errorf("pgxpool new: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	logger.Info("db connected")

	var settings repository.SettingsStore
	if cfg.SettingsStore == "sqlite" {
		s, err := repository.OpenSQLiteSettings(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		settings = s
	} else {
		settings = repository.NewPgSettings(pool)
	}

	a.providers = application.NewProvidersService(settings, cat, cfg.SettingsCacheTTL, domain.NotificationConfig{
		AdminEmail:                cfg.NotificationEmail,
		PushNotificationsEnabled:  true,
		EmailNotificationsEnabled: true,
		SlackNotificationsEnabled: true,
	})

	a.matcher = coverage.NewMatcher(cat.Nationwide())
	geoClient := &http.Client{Timeout: cfg.GeocodeTimeout}
	zips := ziplookup.New([]ziplookup.Geocoder{
		ziplookup.NewZippopotamus("", geoClient),
		ziplookup.NewPostalCodes("", geoClient),
		ziplookup.NewZipCodeStack("", geoClient),
	}, ziplookup.Options{CacheSize: cfg.ZipCacheSize, CacheTTL: cfg.ZipCacheTTL, Timeout: cfg.GeocodeTimeout})
	a.availability = application.NewAvailabilityService(zips, a.matcher, a.providers)
	a.validator = orderform.NewValidator(cat, nil)

	values, err := notify.NewGoogleValues(ctx, cfg.GoogleSheetID, cfg.GoogleServiceAccountEmail, cfg.GooglePrivateKey)
	if err != nil {
		// the sheet step reports unconfigured and the other steps still run
		logger.Error("google sheets unavailable", "err", err)
		values = nil
	}
	slack := newSlack(cfg)
	a.push = repository.NewPushRepository(pool)

	notifications := func(ctx context.Context) domain.NotificationConfig { return a.providers.NotificationConfig(ctx) }
	recipient := func(ctx context.Context) string {
		if to := notifications(ctx).AdminEmail; to != "" {
			return to
		}
		return cfg.NotificationEmail
	}

	subs := repository.NewSubmissionRepository(pool)
	pipeline := fanout.NewPipeline(subs, 15*time.Second,
		notify.NewSheetsAppender(values, cfg.SheetWorksheet),
		fanout.Gate(notify.NewEmailNotifier(newMailer(cfg), cfg.EmailSender, recipient),
			func(ctx context.Context) bool { return notifications(ctx).EmailNotificationsEnabled }),
		fanout.Gate(slack,
			func(ctx context.Context) bool { return notifications(ctx).SlackNotificationsEnabled }),
		fanout.Gate(notify.NewPushNotifier(a.push, notify.VAPID{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subscriber: cfg.VAPIDSubscriber,
		}), func(ctx context.Context) bool { return notifications(ctx).PushNotificationsEnabled }),
	)
	logger.Info("fanout pipeline ready", "steps", pipeline.Steps(), "mode", cfg.FanoutMode)

	var publisher application.Publisher
	if cfg.FanoutMode == config.FanoutQueue {
		prod := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, func() { _ = prod.Close() })
		publisher = prod
	}

	a.orders = application.NewOrdersService(subs, pipeline, a.validator, a.availability, a.providers, publisher,
		application.OrdersConfig{Mode: cfg.FanoutMode, MaxAttempts: cfg.QueueMaxAttempts, Lease: cfg.QueueLease})

	a.fakeSales = newFakeSales(ctx, cfg, cat, slack)
	a.scheduler = fakesales.NewScheduler(cfg.FakeSalesInterval, func(ctx context.Context) {
		_, _ = a.fakeSales.Once(ctx)
	})

	ok = true
	return a, nil
}

func (a *app) loadCoverage() {
	start := time.Now()
	a.matcher.Load(os.DirFS(a.cfg.CoverageDir), a.catalog.Regional())
	logger.Info("coverage ready", "dir", a.cfg.CoverageDir, "took", time.Since(start))
}

func (a *app) sweepLoop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.orders.Sweep(ctx, 50); err != nil {
				logger.Warn("scheduled sweep failed", "err", err)
			}
		}
	}
}
