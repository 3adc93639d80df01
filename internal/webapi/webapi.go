// Package webapi exposes the engine over HTTP: a small JSON/REST
// surface for settings, teams, groups, and template previews, an SSE
// endpoint for live tick progress, and a Prometheus /metrics endpoint.
//
// Grounded on cmd/plex-tuner/main.go + internal/tuner/server.go: stdlib
// http.ServeMux (no router framework), the same request-logging
// wrapper shape, and the /healthz JSON response convention.
package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nreeb/teamarr/internal/domain"
	"github.com/nreeb/teamarr/internal/engine"
	"github.com/nreeb/teamarr/internal/health"
	"github.com/nreeb/teamarr/internal/scheduler"
	"github.com/nreeb/teamarr/internal/template"
)

// Server wires the engine and scheduler into an HTTP surface. It owns
// no state of its own beyond the broadcaster; every handler reads
// through to Engine/DB directly.
type Server struct {
	Addr      string
	Engine    *engine.Engine
	Scheduler *scheduler.Scheduler
	Progress  *Broadcaster

	// DispatcharrURL, when set, is probed by /api/health on every
	// request via internal/health so operators can see downstream
	// reachability without checking scheduler logs.
	DispatcharrURL string
}

// New builds a Server wired to e/sched and registers its broadcaster
// as sched's progress narrator, so SSE subscribers see tick steps as
// they happen regardless of whether sched.Run has started yet.
func New(addr string, e *engine.Engine, sched *scheduler.Scheduler, dispatcharrURL string) *Server {
	s := &Server{Addr: addr, Engine: e, Scheduler: sched, Progress: NewBroadcaster(), DispatcharrURL: dispatcharrURL}
	sched.SetProgress(s.Progress)
	return s
}

// Run blocks until ctx is cancelled, serving the HTTP surface.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/groups", s.handleGroups)
	mux.HandleFunc("/api/groups/run", s.handleTriggerRun)
	mux.HandleFunc("/api/teams", s.handleTeams)
	mux.HandleFunc("/api/template/preview", s.handleTemplatePreview)
	mux.HandleFunc("/api/events/progress", s.handleProgressSSE)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: s.Addr, Handler: logRequests(mux)}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[WEBAPI] listening on %s", s.Addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WEBAPI] shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[WEBAPI] %s %s dur=%s", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WEBAPI] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	downstream := "not configured"
	if s.DispatcharrURL != "" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := health.CheckURL(ctx, s.DispatcharrURL); err != nil {
			downstream = "unreachable: " + err.Error()
		} else {
			downstream = "ok"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"leagues":    len(s.Engine.Leagues.EnabledLeagues()),
		"providers":  s.Engine.Providers.Names(),
		"downstream": downstream,
		"generation": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSettings: GET returns the current settings snapshot; PUT
// {"key":"...","value":"..."} writes one override and reloads the
// engine so the change takes effect on the next tick.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Engine.Settings)
	case http.MethodPut:
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if body.Key == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("key is required"))
			return
		}
		if err := engine.SaveSetting(r.Context(), s.Engine.DB, body.Key, body.Value); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.Engine.Reload(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("saved but reload failed: %w", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Engine.DB.DB.QueryContext(r.Context(), `SELECT id, name, enabled, total_stream_count, sort_order FROM event_epg_groups ORDER BY sort_order`)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	type groupRow struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Enabled   bool   `json:"enabled"`
		StreamsIn int    `json:"total_stream_count"`
		SortOrder int    `json:"sort_order"`
	}
	var out []groupRow
	for rows.Next() {
		var g groupRow
		var enabled int
		if err := rows.Scan(&g.ID, &g.Name, &enabled, &g.StreamsIn, &g.SortOrder); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		g.Enabled = enabled != 0
		out = append(out, g)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTriggerRun kicks off an out-of-cycle scheduler tick, the HTTP
// equivalent of the original's manual "run now" button.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.Scheduler.TriggerRun()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	league := strings.TrimSpace(r.URL.Query().Get("league"))
	query := `SELECT provider_team_id, provider, league, sport, name, abbreviation FROM team_cache`
	args := []any{}
	if league != "" {
		query += ` WHERE league = ?`
		args = append(args, league)
	}
	rows, err := s.Engine.DB.DB.QueryContext(r.Context(), query, args...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer rows.Close()

	type teamRow struct {
		ProviderTeamID string `json:"provider_team_id"`
		Provider       string `json:"provider"`
		League         string `json:"league"`
		Sport          string `json:"sport"`
		Name           string `json:"name"`
		Abbreviation   string `json:"abbreviation"`
	}
	var out []teamRow
	for rows.Next() {
		var t teamRow
		if err := rows.Scan(&t.ProviderTeamID, &t.Provider, &t.League, &t.Sport, &t.Name, &t.Abbreviation); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, t)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleTemplatePreview renders a {variable} template string against a
// synthetic event built from query params, so the settings UI can show
// a live preview of a channel-name template before saving it.
func (s *Server) handleTemplatePreview(w http.ResponseWriter, r *http.Request) {
	tmpl := r.URL.Query().Get("template")
	if tmpl == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("template query param is required"))
		return
	}
	ev := previewEventFromQuery(r)
	ctx := template.NewContext(ev, r.URL.Query().Get("perspective_team_id"))
	writeJSON(w, http.StatusOK, map[string]string{"rendered": template.Render(tmpl, ctx)})
}

func previewEventFromQuery(r *http.Request) domain.Event {
	q := r.URL.Query()
	return previewEvent{
		HomeTeam: q.Get("home_team"), AwayTeam: q.Get("away_team"),
		Venue: q.Get("venue"), League: q.Get("league"),
	}.toDomainEvent()
}

// handleProgressSSE streams scheduler tick narration as
// text/event-stream frames with a periodic heartbeat comment, grounded
// on the design note for internal/scheduler's ForceRescan-style
// channel plumbing generalized to fan-out.
func (s *Server) handleProgressSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	frames, unsubscribe := s.Progress.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case frame, ok := <-frames:
			if !ok {
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
