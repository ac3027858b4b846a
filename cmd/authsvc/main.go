package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nkarpova/market_auth/internal/audit"
	"github.com/nkarpova/market_auth/internal/config"
	"github.com/nkarpova/market_auth/internal/events"
	"github.com/nkarpova/market_auth/internal/httpserver"
	"github.com/nkarpova/market_auth/internal/middleware"
	"github.com/nkarpova/market_auth/internal/models"
	"github.com/nkarpova/market_auth/internal/repo"
	"github.com/nkarpova/market_auth/internal/service"
	"github.com/nkarpova/market_auth/pkg/db"
	"github.com/nkarpova/market_auth/pkg/logging"
	loggingmw "github.com/nkarpova/market_auth/pkg/middleware/logging"
	"github.com/nkarpova/market_auth/pkg/tokens"
)

func main() {
	cfg := config.Load()
	config.MustNonEmptyBytes(cfg.JWTSecret, "JWT_SECRET")
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	gdb, err := db.Open(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Account{}); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuthEventsTopic)
		defer kp.Close()
		publisher = kp
	}

	var recorder audit.Recorder = audit.Nop{}
	if cfg.ESURL != "" {
		esClient, err := audit.NewESClient(cfg.ESURL, cfg.ESUser, cfg.ESPassword)
		if err != nil {
			log.Fatalf("elasticsearch init error: %v", err)
		}
		recorder = &audit.ESRecorder{Client: esClient, Index: cfg.AuditIndex}
	}

	sessions := &service.SessionService{
		Repo:       &repo.GormRepo{DB: gdb},
		Codec:      tokens.NewCodec(cfg.JWTSecret, cfg.JWTIssuer),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Events:     publisher,
		Audit:      recorder,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.HTTPErrorHandler = httpserver.NewHTTPErrorHandler()
	e.Use(loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Auth:     &httpserver.AuthHTTP{Svc: sessions},
		Accounts: &httpserver.AccountsHTTP{Svc: sessions},
		MW:       middleware.NewAuth(sessions),
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("echo shutdown: %v", err)
	}
}
