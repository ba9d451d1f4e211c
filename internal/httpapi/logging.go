package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Disabled until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "httpapi").Logger() }

// LogLevel controls per-request logging behavior.
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

// defaultLogLevel applies to requests without an override.
var defaultLogLevel = LevelInfo

// SetRequestLogLevel sets the default per-request log level
// ("off", "error", "info" or "debug").
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestEvent starts a log event for r at the given level with the request id attached.
func requestEvent(r *http.Request, lvl zerolog.Level) *zerolog.Event {
	e := zlog.WithLevel(lvl).Str("method", r.Method).Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

// RequestLogger logs one start line (debug) and one end line per request.
// Server errors are logged at LevelError and above, everything else at
// LevelInfo and above.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			requestEvent(r, zerolog.DebugLevel).Msg("request start")
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			switch {
			case status >= 500 && lvl >= LevelError:
				requestEvent(r, zerolog.ErrorLevel).Int("status", status).Dur("dur", time.Since(start)).Msg("request end")
			case lvl >= LevelInfo:
				requestEvent(r, zerolog.InfoLevel).Int("status", status).Int("bytes", ww.BytesWritten()).Dur("dur", time.Since(start)).Msg("request end")
			}
		}()
		next.ServeHTTP(ww, r)
	})
}
