package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/meme-arena/internal/advance"
	"github.com/DoyleJ11/meme-arena/internal/auth"
	"github.com/DoyleJ11/meme-arena/internal/config"
	"github.com/DoyleJ11/meme-arena/internal/gateway"
	"github.com/DoyleJ11/meme-arena/internal/generator"
	"github.com/DoyleJ11/meme-arena/internal/httpapi"
	"github.com/DoyleJ11/meme-arena/internal/hub"
	"github.com/DoyleJ11/meme-arena/internal/lobby"
	"github.com/DoyleJ11/meme-arena/internal/logging"
	"github.com/DoyleJ11/meme-arena/internal/situation"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}

	os.Exit(finish(logger, run(cfg, logger)))
}

// finish logs how the server stopped, flushes the logger and returns the exit code.
func finish(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("server stopped", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := auth.New(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		logger.Warn("ARENA_JWT_SECRET not set, guest tokens will not survive a restart")
	}

	situations := situation.New(cfg.SituationEndpoint,
		situation.WithHTTPClient(&http.Client{Timeout: cfg.SituationTimeout}),
		situation.WithLogger(logger.Named("situation")),
		situation.WithParallelism(cfg.SituationParallelism),
	)
	driver := advance.NewDriver(situations, cfg.RetryPolicy(), logger.Named("advance"))

	// Build the hub with the card loader every session shares. It outlives
	// ctx so shutdown can stop it in order.
	h := hub.NewHub(context.Background(), lobby.Deps{Loader: driver, Logger: logger.Named("lobby")})
	defer h.Shutdown()

	var gen generator.Generator = generator.NewDeck(nil)
	if cfg.GroqAPIKey != "" {
		gen = generator.NewGroq(cfg.GroqAPIKey, cfg.GroqModel, cfg.GroqEndpoint, logger.Named("groq"))
	} else {
		logger.Info("GROQ_API_KEY not set, serving situations from the built-in deck")
	}

	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:        h,
		Auth:       a,
		Gateway:    gateway.Gateway{Exists: h.Exists},
		Situations: situations,
		Generator:  gen,
		DeckMax:    cfg.DeckMax,
		Logger:     logger.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// Closing sessions ends their websocket writers, which lets handlers return.
	h.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
