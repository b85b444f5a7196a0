package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"llmvisor/internal/app"
	"llmvisor/internal/config"
	"llmvisor/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

func runServe(parent context.Context, opts *cliOptions, st config.Settings, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup, err := app.New(app.Options{ConfigDir: opts.configDir, Settings: &st, Logger: log})
	if err != nil {
		return err
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetMaxBodyBytes(st.MaxBodyBytes)
	httpapi.SetCORSOptions(st.CORS.Enabled, st.CORS.Origins, st.CORS.Methods, st.CORS.Headers)
	httpapi.SetBaseContext(ctx)

	if opts.boot {
		rep := sup.RunBoot(ctx)
		lvl := zerolog.InfoLevel
		if !rep.OK {
			lvl = zerolog.WarnLevel
		}
		log.WithLevel(lvl).Strs("errors", rep.Errors).Str("run_id", rep.RunID).Bool("ok", rep.OK).Msg("boot finished")
	}
	sup.Start(ctx)

	srv := &http.Server{
		Addr:              st.ListenAddr,
		Handler:           httpapi.NewMux(sup),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", st.ListenAddr).Str("ollama", st.OllamaURL).Str("config_dir", opts.configDir).Msg("llmvisor listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			_ = sup.Close(context.Background())
			return err
		}
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return sup.Close(sctx)
}
