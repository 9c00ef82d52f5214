/*
main.go - Application entry point.

PURPOSE:
  Initializes and starts the attendance reconciliation server. Handles
  configuration, dependency injection and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional), parse command-line flags
  2. Configure logrus
  3. Open SQLite store, auto-migrate
  4. Wire engine, classifier, resolver, syncer, aggregator
  5. Start HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080, env PORT)
  -db         SQLite database path (default: presence.db, env DB_PATH)
              Use ":memory:" for an in-memory database
  -log-level  logrus level (default: info, env LOG_LEVEL)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/presence.db"
  ./server -db=":memory:" -port=3000 -log-level=debug

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/Yamine-coder/gestion-rh-sub005/anomaly"
	"github.com/Yamine-coder/gestion-rh-sub005/api"
	"github.com/Yamine-coder/gestion-rh-sub005/attendance"
	"github.com/Yamine-coder/gestion-rh-sub005/kpi"
	"github.com/Yamine-coder/gestion-rh-sub005/store/sqlite"
)

func main() {
	// .env first so flag defaults can pick it up; absence is fine.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "presence.db"), "SQLite database path")
	logLevel := flag.String("log-level", envStr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("niveau de log inconnu %q, info utilise", *logLevel)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("ouverture de la base impossible")
	}
	defer store.Close()

	engine := attendance.NewEngine(store, store)
	classifier := attendance.NewClassifier(attendance.DefaultThresholds())
	resolver := anomaly.NewResolver(store.Anomalies(), store.Paiements(), store, store, store, log)
	syncer := anomaly.NewSyncer(engine, classifier, store.Anomalies(), log)
	aggregator := kpi.NewAggregator(engine, store.Directory(), log)

	handler := api.NewHandler(engine, classifier, store.Anomalies(), store.Paiements(),
		resolver, syncer, aggregator, store.Directory(), log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": *port, "db": *dbPath}).Info("serveur demarre")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("serveur arrete en erreur")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("arret du serveur")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("arret force du serveur")
	}

	log.Info("serveur arrete")
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
