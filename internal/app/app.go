// Package app wires configuration, stores and the credential service into a
// session and runs the interactive CLI on top of it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/cli"
	"github.com/dmitrijs2005/emissionkeeper/internal/config"
	"github.com/dmitrijs2005/emissionkeeper/internal/cryptox"
	"github.com/dmitrijs2005/emissionkeeper/internal/docstore"
	"github.com/dmitrijs2005/emissionkeeper/internal/filex"
	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
	"github.com/dmitrijs2005/emissionkeeper/internal/identity/oauth"
	"github.com/dmitrijs2005/emissionkeeper/internal/identity/postgres"
	"github.com/dmitrijs2005/emissionkeeper/internal/localstore"
	"github.com/dmitrijs2005/emissionkeeper/internal/logging"
	"github.com/dmitrijs2005/emissionkeeper/internal/objectstore"
	"github.com/dmitrijs2005/emissionkeeper/internal/session"
	"golang.org/x/crypto/bcrypt"
)

const (
	shutdownTimeout = 5 * time.Second
	credentialSalt  = "emissionkeeper/credential-cache"
)

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	identity *identity.Client
	session  *session.Session
	closers  []closer
}

// NewApp connects every collaborator. Anything opened before a failure is
// closed again.
func NewApp(ctx context.Context, c *config.Config, logOut io.Writer) (_ *App, err error) {
	app := &App{config: c, logger: logging.NewJSON(logOut, c.LogLevel)}
	defer func() {
		if err != nil {
			app.Close(context.Background())
		}
	}()

	localPath, err := filex.EnsureParentDir(c.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("local db path: %w", err)
	}
	localDB, err := localstore.Open(ctx, localPath)
	if err != nil {
		return nil, fmt.Errorf("local db init error: %w", err)
	}
	app.onClose("local db", func(context.Context) error { return localDB.Close() })
	local := localstore.NewRepository(localDB)

	identityDB, err := postgres.Open(ctx, c.IdentityDSN)
	if err != nil {
		return nil, fmt.Errorf("identity db init error: %w", err)
	}
	app.onClose("identity db", func(context.Context) error { return identityDB.Close() })
	if err := postgres.Migrate(ctx, identityDB); err != nil {
		return nil, err
	}

	resets, err := app.resetTokens()
	if err != nil {
		return nil, err
	}

	mongoClient, err := docstore.Connect(ctx, c.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("mongo init error: %w", err)
	}
	app.onClose("mongo", mongoClient.Disconnect)
	docs := docstore.NewMongoStore(mongoClient.Database(c.MongoDatabase), app.logger.With("component", "docstore"))

	objects, err := objectstore.New(ctx, objectStoreConfig(c), app.logger.With("component", "objectstore"))
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	flow := oauth.NewFlow(oauthConfig(c), oauth.PrintOpener(os.Stdout),
		oauth.WithLogger(app.logger.With("component", "oauth")))

	app.identity = identity.NewClient(
		postgres.NewDirectory(identityDB),
		identity.NewBcryptHasher(bcrypt.DefaultCost),
		identity.NewTokenIssuer([]byte(c.SecretKey), c.TokenTTL),
		identity.WithLogger(app.logger.With("component", "identity")),
		identity.WithFederator(flow),
		identity.WithCredentialCache(localstore.NewSealedCredentialCache(local, cryptox.DeriveKey([]byte(c.SecretKey), []byte(credentialSalt)))),
		identity.WithPasswordReset(resets, app.mailer(), c.ResetURL, c.ResetTTL),
	)
	if err := app.identity.Restore(ctx); err != nil {
		// Starting signed out is still usable.
		app.logger.Warn(ctx, "restore session", "error", err)
	}

	app.session, err = session.New(ctx, session.Deps{
		Credentials: app.identity,
		Objects:     objects,
		Documents:   docs,
		Hint:        localstore.NewLoginHint(local),
		Logger:      app.logger.With("component", "session"),
	})
	if err != nil {
		return nil, err
	}
	app.onClose("session", func(context.Context) error { return app.session.Close() })

	return app, nil
}

func (app *App) onClose(name string, fn func(ctx context.Context) error) {
	app.closers = append(app.closers, closer{name: name, fn: fn})
}

// Close releases everything NewApp opened, newest first.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		c := app.closers[i]
		if err := c.fn(ctx); err != nil {
			app.logger.Error(ctx, "close", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) resetTokens() (identity.ResetTokens, error) {
	if app.config.RedisURL == "" {
		app.logger.Info(context.Background(), "reset tokens kept in memory")
		return identity.NewMemoryResetTokens(), nil
	}

	rdb, err := identity.ConnectRedis(app.config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.onClose("redis", func(context.Context) error { return rdb.Close() })
	return identity.NewRedisResetTokens(rdb), nil
}

func (app *App) mailer() identity.Mailer {
	c := app.config
	if c.SMTPAddr == "" {
		return identity.NewLogMailer(app.logger.With("component", "mailer"))
	}
	return identity.NewSMTPMailer(c.SMTPAddr, c.MailFrom, c.SMTPUser, c.SMTPPass)
}

func objectStoreConfig(c *config.Config) objectstore.Config {
	return objectstore.Config{
		AccessKey:     c.S3RootUser,
		SecretKey:     c.S3RootPassword,
		Bucket:        c.S3Bucket,
		Region:        c.S3Region,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
		PresignTTL:    c.PresignTTL,
	}
}

func oauthConfig(c *config.Config) oauth.Config {
	return oauth.Config{
		Provider:     c.OAuthProvider,
		ClientID:     c.OAuthClientID,
		ClientSecret: c.OAuthClientSecret,
		AuthURL:      c.OAuthAuthURL,
		TokenURL:     c.OAuthTokenURL,
		UserInfoURL:  c.OAuthUserInfoURL,
		Scopes:       c.Scopes(),
		CallbackAddr: c.OAuthCallbackAddr,
		Timeout:      c.OAuthTimeout,
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the REPL on stdin/stdout until the user exits or a signal
// arrives, then closes everything.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	done := make(chan struct{})
	go func() {
		defer close(done)
		cli.NewApp(app.session, app.identity, os.Stdin, os.Stdout).Run(ctx)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Close(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown", "error", err)
	}
}
