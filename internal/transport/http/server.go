package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyCheckTimeout = 2 * time.Second

func registerHealth(mux *http.ServeMux, checks []ReadyCheck) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		var failures []string
		for _, check := range checks {
			if check.Check == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
			err := check.Check(ctx)
			cancel()
			if err != nil {
				name := check.Name
				if name == "" {
					name = "dependency"
				}
				failures = append(failures, name+": "+err.Error())
			}
		}
		if len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type ServerConfig struct {
	MaxBodyBytes int64
	// RateLimit is applied to /api routes only. Nil disables limiting.
	RateLimit   Middleware
	ReadyChecks []ReadyCheck
}

// NewServer assembles the API and health routes. Health routes bypass tracing and rate limiting.
func NewServer(api *Handler, cfg ServerConfig, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	apiMux := http.NewServeMux()
	api.Register(apiMux)

	mws := []Middleware{WithBodyLimit(cfg.MaxBodyBytes)}
	if cfg.RateLimit != nil {
		mws = append([]Middleware{cfg.RateLimit}, mws...)
	}
	traced := otelhttp.NewHandler(Chain(apiMux, mws...), "meetly.api")

	root := http.NewServeMux()
	registerHealth(root, cfg.ReadyChecks)
	root.Handle("/api/", traced)

	return Chain(root, WithRequestID, WithAccessLog(log.With(slog.String("component", "http.access"))))
}
