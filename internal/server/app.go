// Package server wires the fileshare server together: configuration,
// database and migrations, the blob backend, services, and the HTTP and gRPC
// endpoints. It also handles signals and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/blobstore"
	"github.com/dmitrijs2005/fileshare/internal/server/config"
	"github.com/dmitrijs2005/fileshare/internal/server/httpapi"
	"github.com/dmitrijs2005/fileshare/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/fileshare/internal/server/services"

	gs "github.com/dmitrijs2005/fileshare/internal/server/grpc"
)

const (
	dbConnectTimeout       = 10 * time.Second
	refreshCleanupInterval = time.Hour
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	userService   *services.UserService
	fileService   *services.FileService
	accessService *services.AccessEvaluator
	shareService  *services.ShareManager
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.Open(ctx, c.DatabaseDSN, dbConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	blobs, err := newBlobStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	access := services.NewAccessEvaluator(db, rm, logger)
	shares := services.NewShareManager(db, rm, c, logger)

	return &App{
		config:        c,
		logger:        logger,
		db:            db,
		userService:   services.NewUserService(db, rm, c, logger),
		fileService:   services.NewFileService(db, rm, blobs, access, shares, logger),
		accessService: access,
		shareService:  shares,
	}, nil
}

func newBlobStore(ctx context.Context, c *config.Config) (blobstore.Store, error) {
	switch c.BlobBackend {
	case config.BlobBackendFS:
		return blobstore.NewFSStore(c.UploadsDir)
	case config.BlobBackendS3:
		return blobstore.NewS3Store(ctx, blobstore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", c.BlobBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.accessService, app.shareService, app.userService)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.New(httpapi.Options{
		Addr:           app.config.HTTPAddr,
		CORSOrigin:     app.config.CORSOrigin,
		PublicBaseURL:  app.config.PublicBaseURL,
		MaxUploadBytes: app.config.MaxUploadBytes,
		Health:         app.db.PingContext,
	}, app.userService, app.fileService, app.shareService, app.logger)

	if err := s.Run(ctx, app.config.ShutdownTimeout); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// cleanupRefreshTokens periodically drops expired refresh tokens.
func (app *App) cleanupRefreshTokens(ctx context.Context) {
	ticker := time.NewTicker(refreshCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.userService.CleanupExpiredRefreshTokens(ctx); err != nil {
				app.logger.Warn(ctx, "refresh token cleanup failed", "error", err)
			}
		}
	}
}

// Run blocks until a signal arrives or one of the servers fails, then
// waits for both servers to stop and closes the database.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.cleanupRefreshTokens(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing database", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
