package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	accounts "github.com/goliatone/go-accounts-web"
	"github.com/goliatone/go-accounts-web/activitymap"
	"github.com/goliatone/go-accounts-web/apiclient"
	"github.com/goliatone/go-accounts-web/config"
	"github.com/goliatone/go-accounts-web/logging"
	"github.com/goliatone/go-accounts-web/middleware/csrf"
	"github.com/goliatone/go-accounts-web/notify"
	"github.com/goliatone/go-accounts-web/repository"
	"github.com/goliatone/go-accounts-web/storage"
	"github.com/goliatone/go-accounts-web/views"
)

const (
	shutdownTimeout = 10 * time.Second
	ledgerSweep     = time.Hour
)

// App holds the long lived dependencies so they can be released on shutdown.
type App struct {
	cfg     *config.Config
	logger  *logging.Adapter
	srv     *fiber.App
	closers []func() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{cfg: cfg, logger: logging.NewAdapter(zl)}
	defer app.Close()

	if err := WithHTTPServer(ctx, app); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		app.logger.Info("shutting down")
		if err := app.srv.ShutdownWithTimeout(shutdownTimeout); err != nil {
			app.logger.Error("shutdown failed", "error", err)
		}
	}()

	app.logger.Info("listening", "addr", cfg.Addr, "env", cfg.Env, "version", cfg.Version)
	return app.srv.Listen(cfg.Addr)
}

// Close releases storage and database handles in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// WithSessionStorage returns redis backed storage when configured, nil
// otherwise which keeps sessions in memory.
func WithSessionStorage(ctx context.Context, app *App) (fiber.Storage, error) {
	rc := app.cfg.Redis
	if rc.Addr == "" {
		app.logger.Warn("ACCOUNTS_REDIS_ADDR not set, sessions are kept in memory")
		return nil, nil
	}

	rdb := storage.NewRedis(storage.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
		Prefix:   "accounts:session:",
		Timeout:  app.cfg.HTTPTimeout,
	})
	if err := rdb.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	app.closers = append(app.closers, rdb.Close)
	return rdb, nil
}

// WithTokenLedger opens the redemption ledger when a DSN is configured and
// sweeps entries older than any token that could still be valid.
func WithTokenLedger(ctx context.Context, app *App) (accounts.Redeemer, error) {
	if app.cfg.Ledger.DSN == "" {
		return nil, nil
	}

	db, err := repository.OpenSQLite(app.cfg.Ledger.DSN)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, db.Close)

	repo := repository.NewRedemptionRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}

	logger := app.logger.Named("ledger")
	ttl := app.cfg.Tokens.ResetTokenTTL
	go func() {
		ticker := time.NewTicker(ledgerSweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n, err := repo.Purge(ctx, now.Add(-ttl))
				if err != nil {
					logger.Warn("ledger purge failed", "error", err)
					continue
				}
				logger.Debug("ledger purged", "rows", n)
			}
		}
	}()

	return repo, nil
}

// WithServices builds the collaborators shared by the account flows.
func WithServices(ctx context.Context, app *App) (accounts.Services, error) {
	cfg := app.cfg

	api := apiclient.New(cfg.API.URL, cfg.API.Token, apiclient.WithTimeout(cfg.HTTPTimeout))

	notifyOpts := []notify.Option{notify.WithTimeout(cfg.HTTPTimeout)}
	if cfg.Notify.BaseURL != "" {
		notifyOpts = append(notifyOpts, notify.WithBaseURL(cfg.Notify.BaseURL))
	}
	if !cfg.IsLive() && len(cfg.Notify.RedirectDomains) > 0 {
		notifyOpts = append(notifyOpts, notify.WithRedirectDomains(cfg.Notify.RedirectDomains))
	}
	notifier, err := notify.New(cfg.Notify.APIKey, notifyOpts...)
	if err != nil {
		return accounts.Services{}, err
	}

	redeemer, err := WithTokenLedger(ctx, app)
	if err != nil {
		return accounts.Services{}, err
	}

	tokens, err := accounts.NewTokenService(accounts.TokenServiceConfig{
		SharedKey:         cfg.Tokens.SharedEmailKey,
		ResetPasswordSalt: cfg.Tokens.ResetPasswordSalt,
		InviteEmailSalt:   cfg.Tokens.InviteEmailSalt,
		ResetTokenTTL:     cfg.Tokens.ResetTokenTTL,
		InviteTokenTTL:    cfg.Tokens.InviteTokenTTL,
	}, api,
		accounts.WithTokenRedeemer(redeemer),
		accounts.WithTokenLogger(app.logger.Named("tokens")),
	)
	if err != nil {
		return accounts.Services{}, err
	}

	blocklist := accounts.DefaultPasswordBlocklist()
	if cfg.Password.BlocklistDir != "" {
		blocklist = accounts.NewPasswordBlocklist(os.DirFS(cfg.Password.BlocklistDir), ".")
	}
	if err := blocklist.Load(); err != nil {
		return accounts.Services{}, err
	}

	activity := app.logger.Named("activity")

	return accounts.Services{
		API:      api,
		Notifier: notifier,
		Tokens:   tokens,
		Policy:   accounts.DefaultPasswordPolicy(blocklist),
		Templates: accounts.NotifyTemplates{
			ResetPassword:         cfg.Notify.ResetPasswordTemplate,
			ResetPasswordInactive: cfg.Notify.ResetPasswordInactiveTemplate,
			ChangePasswordAlert:   cfg.Notify.ChangePasswordAlertTemplate,
		},
		DecoyEmail: cfg.DecoyEmail,
		ResetURL:   accounts.ResetURLBuilder(cfg.BaseURL, cfg.URLPrefix),
		Activity: activitymap.Sink(func(n activitymap.Normalized) error {
			activity.Info(n.Verb,
				"actor_id", n.ActorID,
				"object", n.ObjectType+":"+n.ObjectID,
				"channel", n.Channel,
				"metadata", n.Metadata,
				"occurred_at", n.OccurredAt,
			)
			return nil
		}),
		Logger:  app.logger.Named("flows"),
		Timeout: cfg.HTTPTimeout,
	}, nil
}

// WithHTTPServer assembles the fiber app.
func WithHTTPServer(ctx context.Context, app *App) error {
	cfg := app.cfg

	svc, err := WithServices(ctx, app)
	if err != nil {
		return err
	}

	sessionStorage, err := WithSessionStorage(ctx, app)
	if err != nil {
		return err
	}
	sessions := accounts.NewSessionManager(accounts.NewSessionStore(accounts.SessionConfig{
		CookieName:   cfg.Session.CookieName,
		Lifetime:     cfg.Session.Lifetime,
		CookieSecure: cfg.Session.CookieSecure,
		Storage:      sessionStorage,
	}))

	auther, err := accounts.NewRouteAuthenticator(sessions, svc.API, cfg.URLPrefix+"/login")
	if err != nil {
		return err
	}
	auther.Logger = app.logger.Named("auth")
	auther.Activity = svc.Activity

	ctrl, err := accounts.NewAccountController(svc, auther,
		accounts.WithControllerPrefix(cfg.URLPrefix),
		accounts.WithControllerVersion(cfg.Version),
		accounts.WithControllerDebug(!cfg.IsLive()),
	)
	if err != nil {
		return err
	}
	ctrl.Logger = app.logger.Named("http")

	app.srv = fiber.New(fiber.Config{
		AppName:      "accounts-web " + cfg.Version,
		Views:        views.NewEngine(!cfg.IsLive()),
		ErrorHandler: ctrl.ErrorHandler,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
	})
	app.srv.Use(recover.New())
	app.srv.Use(accounts.StripTrailingSlash())

	key := sha256.Sum256([]byte(cfg.SecretKey))
	accounts.RegisterAccountRoutes(app.srv, ctrl,
		accounts.BindTemplateHelpers(fiber.Map{"version": cfg.Version}),
		csrf.New(csrf.Config{
			SecureKey:    key[:],
			Expiration:   cfg.Session.Lifetime,
			ErrorHandler: ctrl.ErrorHandler,
		}),
	)
	csrf.RegisterRoutes(app.srv.Group(cfg.URLPrefix))

	return nil
}
