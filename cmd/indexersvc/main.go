package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/card-indexer/configs"
	"github.com/avvvet/card-indexer/internal/indexer/broker"
	indexercfg "github.com/avvvet/card-indexer/internal/indexer/config"
	"github.com/avvvet/card-indexer/internal/indexer/handlers"
	"github.com/avvvet/card-indexer/internal/indexer/listener"
	"github.com/avvvet/card-indexer/internal/indexer/service"
	"github.com/avvvet/card-indexer/internal/indexer/state"
	"github.com/avvvet/card-indexer/internal/indexer/store"
	"github.com/avvvet/card-indexer/internal/indexer/ws"
	natscli "github.com/avvvet/card-indexer/internal/nats"
	"github.com/nats-io/nats.go"
)

const SERVICE_NAME = "indexer"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	_, _, logFile := indexercfg.Paths()
	config.Logging(logFile)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	cfg, err := indexercfg.Load()
	if err != nil {
		log.Fatalf("Error: %v. The indexer cannot start.", err)
	}

	cardStore := store.NewCardStore(cfg.DatabaseFile)
	cardService := service.NewCardService(cardStore.Load(), cardStore)
	searchService := service.NewSearchService(cardStore)
	log.Infof("card database loaded from %s (%d cards)", cardStore.Path(), cardService.Count())

	st := state.New()

	// optional NATS fan-out of indexing events
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		n, err := natscli.Connect(cfg.NatsURL, cfg.NatsToken)
		if err != nil {
			log.Warnf("unable to connect to NATS at %s, indexing events will not be published: %v", cfg.NatsURL, err)
		} else {
			nc = n.Conn
			defer nc.Close()
			log.Infof("NATS connection established successfully %s", n.Url)
		}
	}
	b := broker.NewBroker(nc, cfg.NatsSubject)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// listener
	session, err := listener.NewSession(cfg.Token)
	if err != nil {
		log.Fatalf("Failed to create discord session: %v", err)
	}
	l := listener.NewListener(session, cfg.TargetServerID, cfg.TargetBotID, cardService, st, b)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		// a crash is terminal; the HTTP surface keeps serving
		if err := l.Run(ctx); err != nil {
			log.Errorf("listener stopped: %v", err)
		}
	}()

	// websocket stream
	hub := ws.NewWs(st)
	go hub.Run(ctx)

	// Init handlers and routes
	h := handlers.NewHandler(searchService, cardService, st, hub, instanceId)
	h.InitAuth(cfg.AdminJWTSecret)
	r := h.NewRouter(cfg.RateLimit)

	// Create server with timeout settings; no WriteTimeout because /ws is long-lived
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	select {
	case <-listenerDone:
	case <-time.After(5 * time.Second):
		log.Warn("listener did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
