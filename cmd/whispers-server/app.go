package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/whispers/whispers/internal/config"
	"github.com/whispers/whispers/internal/domain/comment"
	"github.com/whispers/whispers/internal/domain/event"
	"github.com/whispers/whispers/internal/domain/identity"
	"github.com/whispers/whispers/internal/domain/notification"
	"github.com/whispers/whispers/internal/domain/search"
	"github.com/whispers/whispers/internal/domain/servicerequest"
	"github.com/whispers/whispers/internal/domain/superevent"
	"github.com/whispers/whispers/internal/platform/cache"
	"github.com/whispers/whispers/internal/platform/db"
	"github.com/whispers/whispers/internal/platform/mail"
	"github.com/whispers/whispers/internal/platform/messaging"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newMailer relays through SMTP when a host is configured and only logs
// otherwise.
func newMailer(cfg *config.Config, logger zerolog.Logger) mail.EmailSender {
	if cfg.SMTPHost == "" {
		return mail.LogSender{Logger: logger}
	}
	return mail.NewSMTPSender(mail.SMTPConfig{Host: cfg.SMTPHost, Port: cfg.SMTPPort, From: cfg.SMTPFrom})
}

// app holds the shared infrastructure and every domain service. serve,
// worker and notify all build one.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *pgxpool.Pool
	cache  *cache.Client
	outbox *messaging.OutboxRepo

	identity        *identity.Service
	events          *event.Service
	searches        *search.Service
	comments        *comment.Service
	serviceRequests *servicerequest.Service
	superEvents     *superevent.Service
	notifications   *notification.Service
	rules           *notification.Rules
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	rc, err := cache.New(cache.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, pool: pool, cache: rc, outbox: messaging.NewOutboxRepo(pool)}
	tx := db.NewTxRunner(pool)

	a.identity = identity.NewService(
		identity.NewOrganizationRepo(pool),
		identity.NewUserRepo(pool),
		identity.NewContactRepo(pool),
		identity.NewCircleRepo(pool),
	)

	lookups := event.NewCachedLookups(event.NewLookupRepo(pool), rc, cfg.LookupTTL(), logger)
	a.events = event.NewService(event.NewRepo(pool), lookups, a.identity, tx)
	a.events.SetLogger(logger)
	a.events.SetEmitter(event.NewOutboxEmitter(a.outbox, cfg.KafkaTopic))

	a.searches = search.NewService(search.NewRepo(pool))

	a.comments = comment.NewService(comment.NewRepo(pool), a.events)
	a.serviceRequests = servicerequest.NewService(servicerequest.NewRepo(pool), a.events, lookups, a.comments, tx)
	a.superEvents = superevent.NewService(superevent.NewRepo(pool), a.events, lookups, tx)
	a.comments.Register(comment.KindEventLocation, a.events.LocationEventID)
	a.comments.Register(comment.KindServiceRequest, a.serviceRequests.EventID)
	a.comments.Register(comment.KindSuperEvent, a.superEvents.Exists)

	notices := notification.NewRepo(pool)
	cues := notification.NewCueRepo(pool)
	a.notifications = notification.NewService(notices, cues, tx)
	sink := notification.NewSink(notices, newMailer(cfg, logger), cfg.AdminEmail, logger)
	a.rules = notification.NewRules(a.events, a.identity, cues, lookups, sink, notification.RulesConfig{
		StalePeriods:  cfg.StalePeriods(),
		EpiUserEmails: cfg.EpiUserEmails,
	}, logger)

	return a, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close redis")
	}
	a.pool.Close()
}
