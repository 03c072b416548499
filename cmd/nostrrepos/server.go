package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"nostrrepos/pkg/github"
	"nostrrepos/pkg/types"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

func serveCmd() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries and identity lookups over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := setup(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if address == "" {
				address = rt.cfg.Server.Address
			}
			srv := &http.Server{
				Addr:              address,
				Handler:           newRouter(rt.svc, rt.registry),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info("Listening", zap.String("address", address))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
				rt.logger.Info("Shutting down")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (defaults to server.address from config)")
	return cmd
}

func newRouter(svc *service, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(svc))
	r.Get("/resolve/{login}", handleResolve(svc))
	r.Post("/query", handleQuery(svc))
	r.Get("/repos/{owner}/{repo}/status", handleRepoStatus(svc))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return r
}

func handleHealth(svc *service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{"status": "ok"}
		if svc.pool != nil {
			resp["relays_connected"] = svc.pool.Size()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// profileJSON is the wire shape of a resolved contributor
type profileJSON struct {
	Login    string `json:"login"`
	Name     string `json:"name,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Website  string `json:"website,omitempty"`
	Pubkey   string `json:"pubkey,omitempty"`
	Resolved bool   `json:"resolved"`
}

func profileView(p types.ContributorProfile) profileJSON {
	return profileJSON{
		Login:    p.ExternalHandle,
		Name:     p.DisplayName,
		Twitter:  p.SecondaryHandle,
		Website:  p.ExternalURL,
		Pubkey:   string(p.ResolvedKey),
		Resolved: p.ResolvedKey != "",
	}
}

func handleResolve(svc *service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := svc.Resolve(r.Context(), chi.URLParam(r, "login"))
		if err != nil {
			httpError(w, upstreamStatus(err), "failed to fetch profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, profileView(profile))
	}
}

// handleQuery accepts a single filter object or an array of filters
func handleQuery(svc *service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			httpError(w, http.StatusBadRequest, "invalid JSON body: %v", err)
			return
		}

		var filters []types.Filter
		if err := json.Unmarshal(raw, &filters); err != nil {
			var single types.Filter
			if err := json.Unmarshal(raw, &single); err != nil {
				httpError(w, http.StatusBadRequest, "invalid filter: %v", err)
				return
			}
			filters = []types.Filter{single}
		}

		records, err := svc.Query(r.Context(), filters...)
		if errors.Is(err, types.ErrInvalidFilter) {
			httpError(w, http.StatusBadRequest, "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func handleRepoStatus(svc *service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.RepoStatus(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"))
		if errors.Is(err, errNoPublisher) {
			httpError(w, http.StatusServiceUnavailable, "%v", err)
			return
		}
		if err != nil {
			httpError(w, upstreamStatus(err), "failed to check repository: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func upstreamStatus(err error) int {
	if errors.Is(err, github.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": fmt.Sprintf(format, args...),
	})
}
