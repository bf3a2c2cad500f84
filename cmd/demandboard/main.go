package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/psepar/demandboard/internal/ai"
	"github.com/psepar/demandboard/internal/auth"
	"github.com/psepar/demandboard/internal/httpapi"
	"github.com/psepar/demandboard/internal/model"
	"github.com/psepar/demandboard/internal/notify"
	"github.com/psepar/demandboard/internal/repo"
	"github.com/psepar/demandboard/internal/store"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("config: auth.jwt_secret is required")
	}

	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer st.Close()

	directory := model.NewDirectory(cfg.Users)
	catalog := repo.NewProjectCatalog(cfg.Projects)
	mailer := notify.NewMailer(cfg.SMTP)
	fanout := notify.New(st, directory, cfg.Policy.UnknownRecipient, mailer)

	repository := repo.New(st, fanout, catalog, cfg.Policy.SelfDelete)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := repository.Load(ctx); err != nil {
		log.Fatalf("loading tasks: %v", err)
	}
	go repository.Run(ctx)

	authService := auth.NewService(st, directory)
	tokens := auth.NewTokenIssuer(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute,
	)
	sessions, err := auth.OpenSessionStore()
	if err != nil {
		log.Warnf("session resumption disabled: %v", err)
	}

	var classifier *ai.Classifier
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		classifier = ai.New(apiKey, cfg.AI.Model, cfg.AI.MaxTokens)
	} else {
		log.Warn("ANTHROPIC_API_KEY not set, demand classifier disabled")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType,
			echo.HeaderAccept, echo.HeaderAuthorization,
		},
	}))

	server := httpapi.New(ctx, repository, authService, tokens, sessions, st, directory, catalog, classifier)
	server.Register(e)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("listening on %s", cfg.HTTP.Listen)
	if err := e.Start(cfg.HTTP.Listen); err != nil {
		log.Infof("server stopped: %v", err)
	}
}
