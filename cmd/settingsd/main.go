// Command settingsd is the system-settings service process: it loads
// configuration, wires the service, serves the websocket bus, and exits
// cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"settingsvc/internal/config"
	"settingsvc/internal/logger"
	"settingsvc/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal("config: ", err)
	}

	slogger, cleanup, err := logger.New()
	if err != nil {
		log.Fatal("logger: ", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(ctx, cfg, slogger)
	if err != nil {
		slogger.Error("service init failed", "error", err)
		os.Exit(1)
	}

	svc.Start(ctx)
	go svc.Run(ctx)

	server := &http.Server{Addr: cfg.WSAddr, Handler: svc.Hub()}
	go func() {
		slogger.Info("settingsd listening", "addr", cfg.WSAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slogger.Error("ws server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slogger.Info("settingsd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if err := svc.Stop(); err != nil {
		slogger.Error("service stop failed", "error", err)
	}
}
