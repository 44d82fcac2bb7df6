// Package api exposes a small read-only HTTP surface over the ledger: JSON
// leaderboards for dashboards plus queue status and prometheus metrics for
// operators. All writes go through the chat frontend, never through here.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ferris-elf/ferris-elf"
	"github.com/ferris-elf/ferris-elf/bench"
	"github.com/ferris-elf/ferris-elf/db"
	"github.com/ferris-elf/ferris-elf/internal/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	store   *db.DB
	handler *bench.Handler
}

func New(store *db.DB, handler *bench.Handler) *API {
	return &API{store: store, handler: handler}
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/leaderboard/{day}/{part}", a.leaderboard)
	r.Get("/best/{part}", a.best)
	r.Get("/status", a.status)
	r.Get("/flags", a.flags)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

type leaderboardRow struct {
	UserID int64   `json:"user_id"`
	TimeNs float64 `json:"time_ns"`
	Time   string  `json:"time"`
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	day, err1 := strconv.Atoi(chi.URLParam(r, "day"))
	part, err2 := strconv.Atoi(chi.URLParam(r, "part"))
	if err1 != nil || err2 != nil || day < 1 || day > 25 || part < 1 || part > 2 {
		errorData(w, "Invalid day or part", http.StatusBadRequest)
		return
	}

	entries, err := a.store.Leaderboard(r.Context(), day, part)
	if err != nil {
		slog.WarnContext(r.Context(), "Could not query leaderboard", slog.Any("err", err))
		errorData(w, "Could not query leaderboard", http.StatusInternalServerError)
		return
	}

	rows := make([]leaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, leaderboardRow{UserID: e.UserID, TimeNs: e.Time, Time: ferriself.FormatNanos(e.Time)})
	}
	returnData(w, rows)
}

type bestRow struct {
	Day    int     `json:"day"`
	UserID int64   `json:"user_id"`
	TimeNs float64 `json:"time_ns"`
	Time   string  `json:"time"`
}

func (a *API) best(w http.ResponseWriter, r *http.Request) {
	part, err := strconv.Atoi(chi.URLParam(r, "part"))
	if err != nil || part < 1 || part > 2 {
		errorData(w, "Invalid part", http.StatusBadRequest)
		return
	}

	bests, err := a.store.BestPerDay(r.Context(), part)
	if err != nil {
		slog.WarnContext(r.Context(), "Could not query bests", slog.Any("err", err))
		errorData(w, "Could not query bests", http.StatusInternalServerError)
		return
	}

	rows := make([]bestRow, 0, len(bests))
	for _, b := range bests {
		rows = append(rows, bestRow{Day: b.Day, UserID: b.UserID, TimeNs: b.Time, Time: ferriself.FormatNanos(b.Time)})
	}
	returnData(w, rows)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	returnData(w, struct {
		QueueLen int    `json:"queue_len"`
		Version  string `json:"version"`
	}{a.handler.QueueLen(), ferriself.Version})
}

// flags lists the runtime flag registry for operators.
func (a *API) flags(w http.ResponseWriter, r *http.Request) {
	vals := make(map[string]int)
	for _, f := range config.GetFlags[int]() {
		vals[f.InternalName()] = f.Value()
	}
	returnData(w, vals)
}

func returnData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		Data   any    `json:"data"`
	}{"success", data}); err != nil {
		slog.Warn("Could not send response", slog.Any("err", err))
	}
}

func errorData(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		Data   string `json:"data"`
	}{"error", msg}); err != nil {
		slog.Warn("Could not send response", slog.Any("err", err))
	}
}
