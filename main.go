package main

import (
	"context"
	"log"
	"net/http"

	"throttlerun/broker/internal/config"
	"throttlerun/broker/internal/httpapi"
	"throttlerun/broker/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	broker, err := NewBroker(cfg, logger)
	if err != nil {
		logger.Fatal("broker setup failed", logging.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broker.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", broker.ServeWS)
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:    logger,
		Readiness: broker,
		Stats:     broker.Stats,
		Drops:     broker.Drops,
	})
	handlers.Register(mux)

	logger.Info("broker listening",
		logging.String("addr", cfg.Address),
		logging.String("start_variant", cfg.StartVariant))
	if err := http.ListenAndServe(cfg.Address, mux); err != nil {
		broker.SetStartupError(err)
		logger.Fatal("http server failed", logging.Error(err))
	}
}
