package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/davrx/cachefront/internal/config"
	"github.com/davrx/cachefront/internal/listing"
	"github.com/davrx/cachefront/internal/logging"
	"github.com/davrx/cachefront/internal/metrics"
	"github.com/davrx/cachefront/internal/observability"
	"github.com/davrx/cachefront/internal/queryopt"
)

func daemonCmd() *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the cache daemon (metrics, health, job search API)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if httpAddr != "" {
				cfg.Daemon.HTTPAddr = httpAddr
			}

			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)
			metrics.InitPrometheus("cachefront", nil)

			ctx := context.Background()
			if err := observability.Init(ctx, observability.Config{
				Enabled:     cfg.Telemetry.Enabled,
				Exporter:    "otlp-http",
				Endpoint:    cfg.Telemetry.Endpoint,
				ServiceName: "cachefront",
				SampleRate:  cfg.Telemetry.SampleRate,
			}); err != nil {
				return err
			}
			defer observability.Shutdown(ctx)

			coord := newCoordinator(cfg)
			defer coord.Close()
			if err := coord.Ping(ctx); err != nil {
				logging.Op().Warn("remote tier not reachable at startup, serving from local tier", "error", err)
			}
			metrics.SetRemoteAvailable(coord.RemoteAvailable())

			opt := queryopt.New(coord, cfg.Query.SlowThreshold)

			var jobs *listing.Store
			if cfg.Postgres.DSN != "" {
				jobs, err = listing.NewStore(ctx, cfg.Postgres.DSN, coord)
				if err != nil {
					return err
				}
				defer jobs.Close()
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.PrometheusHandler())
			mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				if err := coord.Ping(r.Context()); err != nil {
					http.Error(w, err.Error(), http.StatusServiceUnavailable)
					return
				}
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			if jobs != nil {
				mux.HandleFunc("/jobs", jobSearchHandler(jobs, opt, cfg))
			}

			server := &http.Server{
				Addr:              cfg.Daemon.HTTPAddr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				logging.Op().Info("daemon listening", "addr", cfg.Daemon.HTTPAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logging.Op().Error("http server failed", "error", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (overrides config)")
	return cmd
}

// jobSearchHandler serves GET /jobs?location=&company=&salaryMin=&remote=&page=&limit=
// through the query optimizer.
func jobSearchHandler(jobs *listing.Store, opt *queryopt.Optimizer, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := r.URL.Query()
		filter := listing.JobFilter{
			Location: q.Get("location"),
			Company:  q.Get("company"),
		}
		if v := q.Get("salaryMin"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.SalaryMin = n
			}
		}
		if v := q.Get("remote"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				filter.Remote = &b
			}
		}
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit > cfg.Query.MaxLimit {
			limit = cfg.Query.MaxLimit
		}

		result, err := jobs.SearchJobs(r.Context(), opt, filter, page, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if result.FromCache {
			w.Header().Set("X-Cache", "hit")
		}
		json.NewEncoder(w).Encode(result)
	}
}
