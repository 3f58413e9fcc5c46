// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/durakhq/durak/internal/cache"
	"github.com/durakhq/durak/internal/handlers"
	"github.com/durakhq/durak/internal/middleware"
	"github.com/durakhq/durak/internal/room"
	"github.com/durakhq/durak/internal/session"
)

func main() {
	logger := logrus.New()
	if os.Getenv("DURAK_ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Redis is optional: without it rooms live in process memory and
	// the audit queue is a no-op.
	var store room.Store = room.NewMemoryStore()
	if os.Getenv("REDIS_ADDR") != "" {
		if err := cache.ConnectRedis(); err != nil {
			logger.Fatalf("redis: %v", err)
		}
		store = room.NewRedisStore(cache.Rdb)
		logger.Info("using Redis room store")
	}

	rooms := room.NewManager(store, logger)
	if err := rooms.Rehydrate(context.Background()); err != nil {
		logger.Warnf("rehydrate rooms: %v", err)
	}

	sessions := session.NewManager(session.DefaultReconnectWindow)
	srv := handlers.NewGameServer(rooms, sessions, logger)

	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go srv.ReapSessions(reapCtx, 30*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/", handlers.PingHandler)
	mux.Handle("/rooms", middleware.LogMiddleware(logger)(handlers.ListRoomsHandler(srv)))
	mux.Handle("/ws", handlers.GameWSHandler(srv))

	server := &http.Server{
		Handler:     mux,
		ReadTimeout: time.Second * 10,
		// No WriteTimeout: WebSocket connections stay open indefinitely.
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	l, err := net.Listen("tcp", fmt.Sprintf(":%s", port))
	if err != nil {
		logger.Fatalf("failed to listen: %v", err)
	}
	logger.Infof("listening on %s", l.Addr())

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(l)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case sig := <-sigs:
		logger.Infof("terminating: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
