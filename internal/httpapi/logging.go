package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer; Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior of the proxy routes.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = func() LogLevel {
	if v, ok := os.LookupEnv("LLMVISOR_LOG_REQUESTS"); ok {
		return parseLevel(v)
	}
	return LevelInfo
}()

func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// proxyLog is one proxy request's start/end logging, gated by its level.
type proxyLog struct {
	lvl   LogLevel
	start time.Time
	ev    zerolog.Context
}

func startProxyLog(r *http.Request, kind string) *proxyLog {
	pl := &proxyLog{lvl: requestLogLevel(r), start: time.Now()}
	pl.ev = zlog.With().Str("path", r.URL.Path).Str("kind", kind)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		pl.ev = pl.ev.Str("request_id", rid)
	}
	if pl.lvl >= LevelDebug {
		l := pl.ev.Logger()
		l.Debug().Msg("proxy start")
	}
	return pl
}

func (pl *proxyLog) end(status int, model string, err error) {
	if pl.lvl == LevelOff || (pl.lvl == LevelError && err == nil) {
		return
	}
	l := pl.ev.Logger()
	lvl := zerolog.InfoLevel
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	l.WithLevel(lvl).Err(err).Int("status", status).Str("model", model).Dur("dur", time.Since(pl.start)).Msg("proxy end")
}
