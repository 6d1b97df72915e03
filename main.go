package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/RoxasZohbi/inboxPilot/cmd/api"
	"github.com/RoxasZohbi/inboxPilot/internal/email/domain"
	"github.com/RoxasZohbi/inboxPilot/internal/email/repository"
	"github.com/RoxasZohbi/inboxPilot/internal/email/tracker"
	"github.com/RoxasZohbi/inboxPilot/internal/email/usecase"
	"github.com/RoxasZohbi/inboxPilot/pkg/config"
	"github.com/RoxasZohbi/inboxPilot/pkg/database"
	"github.com/RoxasZohbi/inboxPilot/pkg/gmail"
	"github.com/RoxasZohbi/inboxPilot/pkg/jobs"
	"github.com/RoxasZohbi/inboxPilot/pkg/logger"
	"github.com/RoxasZohbi/inboxPilot/pkg/openai"
	redispkg "github.com/RoxasZohbi/inboxPilot/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration: ", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer zlog.Sync()

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.GoogleAccount{},
		&domain.Category{},
		&domain.Email{},
	); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}

	rdb, err := redispkg.New(cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect to redis", zap.Error(err))
	}

	accountRepo := repository.NewGoogleAccountRepository(db)
	emailRepo := repository.NewEmailRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	progress := tracker.New(rdb)

	mailClient := gmail.NewClient(cfg.Google.ClientID, cfg.Google.ClientSecret, zlog)
	sessions := func(ctx context.Context, accessToken, refreshToken string, onRefresh gmail.TokenUpdateFunc) (usecase.MailSession, error) {
		return mailClient.Session(ctx, accessToken, refreshToken, onRefresh)
	}
	aiClient := openai.NewClient(cfg.OpenAI, zlog)

	queue := jobs.NewQueue(cfg.Sync.Workers, 1024, zlog)
	queue.Start()

	pipeline := usecase.NewService(accountRepo, emailRepo, categoryRepo, progress,
		sessions, aiClient, queue, cfg.Sync, zlog)

	router := api.NewRouter(pipeline, zlog)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	queue.Stop()
	if err := rdb.Close(); err != nil {
		zlog.Warn("redis close failed", zap.Error(err))
	}
	zlog.Info("stopped")
}
