package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/migrate"

	credentials "github.com/goliatone/go-credentials"
	"github.com/goliatone/go-credentials/middleware/jwtware"
	"github.com/goliatone/go-credentials/notify"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		return err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if err := runMigrations(ctx, db); err != nil {
		return err
	}

	repos := credentials.NewRepositoryManager(db)
	repos.MustValidate()

	libLogger := slogAdapter{logger: logger}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	auther := credentials.NewAuthenticator(repos, cfg).
		WithLogger(libLogger).
		WithNotifier(notifier)

	app := fiber.New(fiber.Config{
		AppName:               "credentials-server",
		DisableStartupMessage: true,
	})

	protected := jwtware.New(jwtware.Config{
		ContextKey:     cfg.GetContextKey(),
		TokenLookup:    cfg.GetTokenLookup(),
		AuthScheme:     cfg.GetAuthScheme(),
		TokenValidator: accessValidator{ts: auther.TokenService()},
	})

	app.Use("/auth/revoke", protected)
	app.Get("/auth/me", protected, meHandler(cfg.GetContextKey()))

	credentials.RegisterAuthRoutes(app,
		credentials.WithControllerRepo(repos),
		credentials.WithControllerAuthenticator(auther),
		credentials.WithControllerNotifier(notifier),
		credentials.WithControllerLogger(libLogger),
		credentials.WithControllerDebug(cfg.Server.Debug),
	)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		errCh <- app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
	}
}

func runMigrations(ctx context.Context, db *bun.DB) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(credentials.GetMigrationsFS()); err != nil {
		return err
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}

	return nil
}

func buildNotifier(cfg *Config, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("smtp host not configured, notifications disabled")
		return notify.Noop{}, nil
	}

	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		TLS:      cfg.SMTP.TLS,
		BaseURL:  cfg.SMTP.BaseURL,
	})
}

// accessValidator adapts the token service's access-token validation
// to the middleware's TokenValidator interface.
type accessValidator struct {
	ts credentials.TokenService
}

func (v accessValidator) Validate(raw string) (jwtware.AuthClaims, error) {
	claims, err := v.ts.Validate(raw, credentials.TokenUseAccess)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func meHandler(contextKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(contextKey).(jwtware.AuthClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
			})
		}

		return c.JSON(fiber.Map{
			"success": true,
			"data": fiber.Map{
				"account_id": claims.AccountID(),
				"role":       claims.Role(),
			},
		})
	}
}
