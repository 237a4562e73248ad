package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yektayar/gateway/internal/ai"
	"github.com/yektayar/gateway/internal/common/cnst"
	"github.com/yektayar/gateway/internal/common/config"
	"github.com/yektayar/gateway/internal/gateway"
	"github.com/yektayar/gateway/internal/gateway/event"
	"github.com/yektayar/gateway/internal/gateway/registry"
	"github.com/yektayar/gateway/internal/i18n"
	"github.com/yektayar/gateway/internal/session"
	"github.com/yektayar/gateway/pkg/logger"
	"github.com/yektayar/gateway/pkg/metrics"
	"github.com/yektayar/gateway/pkg/version"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var configPath = flag.String("conf", "configs/ws-gateway.yaml", "path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting ws-gateway",
		zap.String("version", version.Get()),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port))

	validator, err := session.NewValidator(log, &cfg.Session)
	if err != nil {
		log.Fatal("failed to initialize session validator", zap.Error(err))
	}

	tag, err := language.Parse(cfg.I18n.DefaultLang)
	if err != nil {
		tag = language.English
	}
	translator := i18n.New(tag)
	if err := translator.LoadTranslations(cfg.I18n.Path); err != nil {
		log.Warn("locale resources unavailable, using built-in defaults",
			zap.String("path", cfg.I18n.Path),
			zap.Error(err))
	}

	m := metrics.New(cfg.Metrics)

	client := ai.NewClient(log, cfg.AI)
	prompts := ai.NewPrompts(translator, cfg.I18n.DefaultLang)
	relay := ai.NewRelay(log, client, prompts, m, cfg.AI.MaxHistory)

	reg := registry.New(log)
	router := event.NewRouter(log, relay)
	auth := gateway.NewAuthenticator(log, validator)

	srv := gateway.NewServer(log, cfg, auth, reg, router, relay, client, m)
	srv.Start()

	log.Info("gateway started",
		zap.String("app", cnst.AppName),
		zap.String("socketio_path", cnst.SocketIOPath))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("gateway stopped")
}
