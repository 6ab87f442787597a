package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"epoch/internal/config"
	"epoch/internal/handler"
	"epoch/internal/ingest"
	"epoch/internal/logger"
	"epoch/internal/notify"
	"epoch/internal/pulse"
	"epoch/internal/session"
	"epoch/internal/store"
	"epoch/internal/verify"

	"github.com/gin-gonic/gin"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	clean := flag.Bool("clean", false, "log out every active user before serving")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := cfg.OpenGormDB()
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		logger.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	// the pulse owns its own handle and closes it when it dies
	pulseDB, err := cfg.OpenGormDB()
	if err != nil {
		logger.Error("pulse db connect failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := notify.NewSlack(cfg.Slack)
	machine := session.NewMachine(st, sink, cfg.Slack)

	if *clean {
		results, err := machine.ForceLogoutAll(ctx)
		logger.Info("clean start", "logged_out", len(results))
		if err != nil {
			logger.Warn("clean start incomplete", "err", err)
		}
	}

	r, err := handler.NewRouter(handler.Deps{
		Config:  cfg,
		Store:   st,
		Machine: machine,
		Ingest:  ingest.New(st, sink),
		Verify:  verify.NewWorkflow(st, cfg.Admin.VerifySecret),
	})
	if err != nil {
		logger.Error("router init failed", "err", err)
		os.Exit(1)
	}

	pulseStore := store.New(pulseDB)
	engine := pulse.New(pulseStore, sink, cfg)
	pulseDone := make(chan struct{})
	go func() {
		defer close(pulseDone)
		if err := engine.Run(ctx); err != nil {
			logger.Error("pulse exited", "err", err)
		}
	}()

	srv := &http.Server{Addr: cfg.Addr(), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", "err", err)
		}
	}()

	logger.Info("server starting", "addr", cfg.Addr(), "db", cfg.Database.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
	engine.Stop()
	<-pulseDone
	if err := engine.Marker().Delete(); err != nil {
		logger.Warn("marker cleanup failed", "err", err)
	}
	for _, s := range []*store.Store{pulseStore, st} {
		if err := s.Close(); err != nil {
			logger.Warn("db close failed", "err", err)
		}
	}
}
