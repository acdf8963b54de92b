package piles

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/pilesim/core/pilestatus"
	"github.com/kilianp07/pilesim/infra/logger"
)

// NewStatusHandler returns an HTTP handler exposing pile status data via
// GET /api/piles/status.
func NewStatusHandler(store pilestatus.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		f := pilestatus.Filter{
			ChargeType: r.URL.Query().Get("charge_type"),
			Status:     r.URL.Query().Get("status"),
		}
		entries := store.List(f)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entries); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

// Serve exposes the status handler on its own mux until ctx is done.
func Serve(ctx context.Context, addr string, store pilestatus.Store) error {
	mux := http.NewServeMux()
	mux.Handle("/api/piles/status", NewStatusHandler(store))
	srv := &http.Server{Addr: addr, Handler: mux}
	log := logger.New("status-api")
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
		cancel()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
