package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikeydub/go-union/env"
	"github.com/mikeydub/go-union/server"
	"github.com/mikeydub/go-union/service/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, cleanup := server.Init()
	defer cleanup()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", env.GetInt("PORT")),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.For(ctx).Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.For(ctx).Fatalf("server stopped: %s", err)
		}
	}()

	<-ctx.Done()
	logger.For(nil).Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.For(nil).WithError(err).Error("failed to shut down cleanly")
	}
}
