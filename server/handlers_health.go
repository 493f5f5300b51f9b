package server

import (
	"errors"
	"fmt"
	"net/http"
)

// HandleHealthz is the liveness probe. It only reports that the process serves HTTP.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz runs the readiness checks in order and reports the first failure.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.deps.DB == nil {
				return errors.New("database not configured")
			}
			return h.deps.DB.PingContext(r.Context())
		}},
		{"migrations", func() error {
			if h.deps.MigrationVersion == nil {
				return nil
			}
			version, dirty, err := h.deps.MigrationVersion()
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("schema version %d is dirty", version)
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
