package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/saltbet-bot/db"
	"github.com/onnwee/saltbet-bot/stats"
	"github.com/onnwee/saltbet-bot/telemetry"
)

// HandleLive returns the latest live stats in the live-data wire format.
func (h *Handlers) HandleLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Live == nil {
		http.Error(w, "live stats unavailable", http.StatusServiceUnavailable)
		return
	}
	body, err := stats.Marshal(h.deps.Live.Last())
	if err != nil {
		http.Error(w, "encode live stats", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(body)
}

// HandleLiveWS upgrades to a websocket that receives every live stats update.
func (h *Handlers) HandleLiveWS(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		http.Error(w, "live stream unavailable", http.StatusServiceUnavailable)
		return
	}
	h.deps.Hub.ServeWS(w, r)
}

// HandleRounds lists recently closed rounds. ?limit= caps the result.
func (h *Handlers) HandleRounds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Rounds == nil {
		http.Error(w, "round history unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := parseIntQuery(r, "limit", 50)
	rounds, err := h.deps.Rounds.RecentRounds(r.Context(), limit)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list rounds", slog.Any("err", err), slog.String("component", "http"))
		http.Error(w, "list rounds failed", http.StatusInternalServerError)
		return
	}
	if rounds == nil {
		rounds = []db.RoundRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}
