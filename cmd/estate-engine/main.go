package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lastwish-io/estate-engine/internal/assets"
	"github.com/lastwish-io/estate-engine/internal/config"
	"github.com/lastwish-io/estate-engine/internal/engine"
	"github.com/lastwish-io/estate-engine/internal/httpapi"
	"github.com/lastwish-io/estate-engine/internal/logging"
	"github.com/lastwish-io/estate-engine/internal/moralis"
	"github.com/lastwish-io/estate-engine/internal/payment"
	"github.com/lastwish-io/estate-engine/internal/provider"
	"github.com/lastwish-io/estate-engine/internal/resolver"
	"github.com/lastwish-io/estate-engine/internal/session"
	"github.com/lastwish-io/estate-engine/internal/store"
	"github.com/lastwish-io/estate-engine/internal/webhook"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to parse config:", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Engine.LogLevel)
	defer func() { _ = log.Sync() }()

	log.Info("estate-engine",
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_date", BuildDate),
	)

	st, err := store.New(cfg.Engine.DataDir, log)
	if err != nil {
		log.Error("store init failed", zap.Error(err))
		return
	}

	var walletProvider provider.Provider
	if cfg.Provider.RPCURL != "" {
		rpc, err := provider.DialRPC(ctx, cfg.Provider.RPCURL, cfg.Provider.PollInterval, log)
		if err != nil {
			log.Error("wallet provider dial failed", zap.String("url", cfg.Provider.RPCURL), zap.Error(err))
			return
		}
		defer rpc.Close()
		walletProvider = rpc
	} else {
		log.Warn("no wallet RPC configured; session operations will be unavailable")
	}

	indexer := moralis.NewClient(cfg.Indexer.BaseURL, cfg.Indexer.APIKey, cfg.Indexer.Timeout, cfg.Indexer.NFTPage)

	var notifier webhook.Notifier = webhook.Nop{}
	if cfg.Webhook.URL != "" {
		notifier = webhook.NewHTTPNotifier(cfg.Webhook.URL, log)
	}

	sess := session.NewManager(walletProvider, st, notifier, cfg.Provider.TargetChain(), log)
	eng := engine.New(
		cfg,
		st,
		sess,
		assets.NewRegistry(indexer, log),
		resolver.New(indexer, log),
		payment.NewProcessor(walletProvider, cfg.Payment.PollInterval, cfg.Payment.ConfirmTimeout, log),
		notifier,
		log,
	)
	eng.Start()
	defer eng.Stop()

	server := &http.Server{
		Addr:    cfg.Engine.ListenAddr,
		Handler: httpapi.NewRouter(httpapi.NewHandler(eng)),
	}

	go func() {
		log.Info("listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", zap.Error(err))
	} else {
		log.Info("HTTP server gracefully stopped")
	}
}
