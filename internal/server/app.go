// Package server initializes and runs the teamplan server: configuration,
// logging, database and migrations, the PII field cipher, the services and
// the HTTP API, with signal-driven graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dstepanovs/teamplan/internal/common"
	"github.com/dstepanovs/teamplan/internal/cryptox"
	"github.com/dstepanovs/teamplan/internal/logging"
	"github.com/dstepanovs/teamplan/internal/server/config"
	"github.com/dstepanovs/teamplan/internal/server/httpapi"
	"github.com/dstepanovs/teamplan/internal/server/identity"
	"github.com/dstepanovs/teamplan/internal/server/notify"
	"github.com/dstepanovs/teamplan/internal/server/pii"
	"github.com/dstepanovs/teamplan/internal/server/services"
	"github.com/dstepanovs/teamplan/internal/server/store"
)

// fieldCipherPurpose scopes the derived PII key away from any other use of
// the master secret. Changing it makes every stored envelope unreadable.
const fieldCipherPurpose = "teamplan/pii/v1"

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	secret, err := cfg.EncryptionSecret()
	if err != nil {
		return nil, err
	}
	cipher, err := cryptox.NewFieldCipher(secret, fieldCipherPurpose)
	common.WipeByteArray(secret)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	st := store.NewPostgres(db)
	// A field spec naming an unknown field is a deployment mistake; refuse
	// to start rather than silently store plaintext.
	if err := pii.CheckFieldSpecs(st.Schema()); err != nil {
		return nil, err
	}

	codec := pii.NewCodec(cipher, logger)
	tokens := identity.NewResolver([]byte(cfg.JWTSecret), cfg.AccessTokenValidityDuration)
	sender := notify.NewLogSender(logger)

	api := httpapi.NewServer(
		services.NewUserService(st, codec, identity.BcryptHasher{}, tokens, logger, cfg.PageSize),
		services.NewProjectService(st, codec, logger, cfg.PageSize),
		services.NewGoalService(st, codec, logger, cfg.PageSize),
		services.NewMessageService(st, codec, logger, cfg.PageSize),
		services.NewInvitationService(st, codec, sender, sender, logger),
		services.NewAttachmentService(st, cfg, logger),
		tokens,
		logger,
	)

	return &App{config: cfg, logger: logger, db: db, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting server", "addr", app.config.EndpointAddr)
	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddr,
		Handler: app.api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return app.db.Close()
}
