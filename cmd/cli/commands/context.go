package commands

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/jakechorley/donornet/internal/config"
	"github.com/jakechorley/donornet/pkg/auth"
	"github.com/jakechorley/donornet/pkg/clients/gmailclient"
	"github.com/jakechorley/donornet/pkg/clients/sheetsclient"
	"github.com/jakechorley/donornet/pkg/core/access"
	"github.com/jakechorley/donornet/pkg/core/alertsync"
	"github.com/jakechorley/donornet/pkg/core/model"
	"github.com/jakechorley/donornet/pkg/feed/redisfeed"
	"github.com/jakechorley/donornet/pkg/gateway"
	"github.com/jakechorley/donornet/pkg/postgres"
	"github.com/jakechorley/donornet/pkg/session"
	"github.com/jakechorley/donornet/pkg/utils"
)

// Backend is the database with alert writes routed through the configured
// change-feed publisher
type Backend struct {
	*postgres.DB
	Alerts gateway.AlertStore
}

func (b *Backend) CreateAlert(ctx context.Context, author model.Identity, fields model.AlertFields) (model.Alert, error) {
	return b.Alerts.CreateAlert(ctx, author, fields)
}

func (b *Backend) DeleteAlert(ctx context.Context, id string, acting model.Identity) error {
	return b.Alerts.DeleteAlert(ctx, id, acting)
}

// AppContext holds the application dependencies shared across all commands
type AppContext struct {
	Env      string
	Cfg      *config.Config
	Backend  *Backend
	Feed     gateway.AlertFeed
	Auth     *auth.Service
	Files    *session.FileStore
	Sessions *session.FileSessions
	Logger   *zap.Logger
	Ctx      context.Context

	redis  *redis.Client
	google *utils.GoogleAccount
	sheets *sheetsclient.Client
	gmail  *gmailclient.Client
}

// Connect opens the database and the configured change feed
func (app *AppContext) Connect() error {
	app.Logger.Info("Connecting to database")
	db, err := postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.Backend = &Backend{DB: db, Alerts: db}

	switch app.Cfg.Feed.Driver {
	case config.FeedDriverRedis:
		app.Logger.Info("Connecting to redis alert feed", zap.String("addr", app.Cfg.Feed.RedisAddr))
		app.redis = redisfeed.NewClient(app.Cfg.Feed)
		if err := redisfeed.Ping(app.Ctx, app.redis); err != nil {
			return err
		}
		publisher := redisfeed.NewPublisher(app.redis, app.Cfg.Feed.Channel)
		app.Backend.Alerts = redisfeed.NewPublishingStore(db, publisher, app.Logger)
		app.Feed = redisfeed.New(app.redis, app.Cfg.Feed.Channel, app.Logger)
	default:
		app.Feed = db.NewFeed(app.Logger)
	}
	app.Logger.Debug("Alert feed ready", zap.String("driver", app.Cfg.Feed.Driver))

	app.Files, err = session.NewFileStore(app.Env)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	app.Sessions = session.NewFileSessions(app.Files, db)
	app.Auth = auth.New(db, app.Cfg.SessionTTL, app.Logger)
	return nil
}

// Close releases connections opened by Connect
func (app *AppContext) Close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if app.Backend != nil {
		app.Backend.Close()
	}
}

// fileGateway pairs the saved CLI session with the database's role lookup
type fileGateway struct {
	*session.FileSessions
	gateway.Roles
}

// Gateway is what the session router and access gate consult
func (app *AppContext) Gateway() access.Gateway {
	return fileGateway{FileSessions: app.Sessions, Roles: app.Backend}
}

// Synchronizer creates an idle alert synchronizer for the saved session
func (app *AppContext) Synchronizer() *alertsync.Synchronizer {
	return alertsync.New(app.Sessions, app.Backend, app.Feed, app.Logger)
}

// GoogleAccount authorizes with Google on first use. Sheets, Gmail and
// Google sign-in share the one account.
func (app *AppContext) GoogleAccount() (*utils.GoogleAccount, error) {
	if app.google != nil {
		return app.google, nil
	}

	oauthCfg, err := config.LoadOAuthClientWithEnv(app.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to load OAuth client config: %w", err)
	}

	app.Logger.Info("Authorizing with Google")
	app.google, err = utils.AuthorizeGoogle(app.Ctx, oauthCfg, app.Env)
	if err != nil {
		return nil, err
	}
	return app.google, nil
}

// SheetsClient returns the Sheets client
func (app *AppContext) SheetsClient() (*sheetsclient.Client, error) {
	if app.sheets != nil {
		return app.sheets, nil
	}

	account, err := app.GoogleAccount()
	if err != nil {
		return nil, err
	}
	app.sheets, err = sheetsclient.New(app.Ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets client: %w", err)
	}
	return app.sheets, nil
}

// GmailClient returns the Gmail client, sending as cfg.GmailSender when set
func (app *AppContext) GmailClient() (*gmailclient.Client, error) {
	if app.gmail != nil {
		return app.gmail, nil
	}

	account, err := app.GoogleAccount()
	if err != nil {
		return nil, err
	}
	app.gmail, err = gmailclient.New(app.Ctx, account, app.Cfg.GmailSender)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}
	return app.gmail, nil
}
