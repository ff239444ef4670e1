// Package api serves the monitoring interface of a server daemon: health,
// the list of protocol runs and a live event stream per run.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/SanthoshCheemala/PolyPSI/internal/config"
	"github.com/SanthoshCheemala/PolyPSI/internal/jobs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// Info is the static description reported by /health.
type Info struct {
	Params  config.Params `json:"-"`
	Scheme  string        `json:"scheme"`
	Address string        `json:"address"`
}

type Handler struct {
	runs    *jobs.Manager
	info    Info
	started time.Time
}

func NewHandler(runs *jobs.Manager, info Info) *Handler {
	return &Handler{runs: runs, info: info, started: time.Now()}
}

// NewRouter mounts the handlers. auth may be nil to serve without tokens.
func NewRouter(h *Handler, auth *Auth) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)
	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(RequireToken(auth))
		}
		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{runID}", h.GetRun)
		r.Get("/runs/{runID}/events", h.RunEvents)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Scheme      string `json:"scheme"`
	Address     string `json:"address"`
	Params      string `json:"params"`
	Fingerprint string `json:"fingerprint"`
	Uptime      string `json:"uptime"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Scheme:      h.info.Scheme,
		Address:     h.info.Address,
		Params:      h.info.Params.String(),
		Fingerprint: h.info.Params.Fingerprint(),
		Uptime:      time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.List()
	out := make([]jobs.Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, run.Snapshot())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run := h.runs.Get(chi.URLParam(r, "runID"))
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	snapshot := run.Snapshot()
	writeJSON(w, http.StatusOK, &snapshot)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// RunEvents streams a run over a websocket: the current snapshot first,
// then every event until the run finishes.
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	run := h.runs.Get(chi.URLParam(r, "runID"))
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events := run.Subscribe()
	defer run.Unsubscribe(events)

	snapshot := run.Snapshot()
	if err := conn.WriteJSON(&snapshot); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := conn.WriteJSON(&ev); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
