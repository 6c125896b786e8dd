package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lukasschreiber/wimc/internal/database"
	"github.com/lukasschreiber/wimc/internal/email"
	"github.com/lukasschreiber/wimc/internal/logging"
	"github.com/lukasschreiber/wimc/internal/server"
)

const tokenTTL = 24 * time.Hour

func main() {
	logger := logging.Setup(os.Getenv("WIMC_LOG_LEVEL"))

	port := os.Getenv("WIMC_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("WIMC_DB_PATH")
	if dbPath == "" {
		dbPath = "wimc.db"
	}

	secret := os.Getenv("WIMC_TOKEN_SECRET")
	if secret == "" {
		logger.Error("WIMC_TOKEN_SECRET is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(os.Getenv("WIMC_POSTMARK_TOKEN"), os.Getenv("WIMC_FROM_EMAIL"))
	if !emailClient.Configured() {
		logger.Warn("email client not configured, signup and invitations will fail")
	}

	srv := server.New(db, emailClient, server.Config{
		TokenSecret: []byte(secret),
		TokenTTL:    tokenTTL,
	}, logger)

	// Expired rate-limit windows pile up slowly; sweep them hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			srv.RateLimiter().Cleanup()
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
