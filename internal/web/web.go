package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"

	"zeitachse/internal/auth"
	"zeitachse/internal/canon"
	"zeitachse/internal/config"
	"zeitachse/internal/deploy"
	appLog "zeitachse/internal/log"
	"zeitachse/internal/model"
	"zeitachse/internal/names"
	"zeitachse/internal/store"
)

// Server provides the Web UI and JSON API over the canon timeline, the
// event/state stores and the deploy glue.
//
// The stores follow the session model: events and ui state are read fully
// at construction and written fully on user action. The mutex exists only
// because net/http dispatches handlers on separate goroutines; there is
// still exactly one operator.
type Server struct {
	cfg        *config.Config
	mux        *http.ServeMux
	captureMux *http.ServeMux
	runner     *deploy.Runner
	mapper     *names.Mapper
	validate   *validator.Validate

	mu     sync.Mutex
	canon  *canon.Config
	events []model.Event
	state  model.UIState
}

// NewServer constructs a Server, loading the canon config and both stores.
// A broken canon config is a hard error; broken stores fall back to empty
// data by policy.
func NewServer(cfg *config.Config) (*Server, error) {
	cc, err := canon.Load(cfg.CanonConfigPath())
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		mux:        http.NewServeMux(),
		captureMux: http.NewServeMux(),
		runner:     deploy.NewRunner(cfg.Deploy),
		validate:   validator.New(),
		canon:      cc,
		events:     store.LoadEvents(cfg.EventsPath()),
		state:      store.LoadState(cfg.StatePath()),
	}

	if cfg.NamesPath != "" {
		mapper, err := names.LoadFile(cfg.NamesPath)
		if err != nil {
			// Obfuscation is a convenience surface; serve without it.
			appLog.Warn("name mapping unavailable", "path", cfg.NamesPath, "err", err)
		} else {
			s.mapper = mapper
		}
	}

	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// CaptureRoutes returns the capture-scoped handler: the calendar page only,
// without the auth middleware. The capture pipeline serves this on a loopback
// listener so headless Chromium can reach /calendar without credentials; the
// API and deploy surfaces are not exposed on it.
func (s *Server) CaptureRoutes() http.Handler {
	return s.captureMux
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	if ba == nil {
		return false
	}
	// Treat an empty username or credential as disabled.
	return ba.Username != "" && ba.PasswordHash != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	ba := s.cfg.BasicAuth

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays reachable for probes.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || u != ba.Username || !auth.VerifyPassword(p, ba.PasswordHash) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Zeitachse", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	s.mux.HandleFunc("/calendar", s.handleCalendarPage)
	s.mux.HandleFunc("/preview.png", s.handlePreview)

	s.mux.HandleFunc("/api/canon", s.handleCanon)
	s.mux.HandleFunc("/api/allocate", s.handleAllocate)
	s.mux.HandleFunc("/api/table", s.handleTable)
	s.mux.HandleFunc("/api/calendar", s.handleCalendar)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/api/state", s.handleState)
	s.mux.HandleFunc("/api/seasons", s.handleSeasons)

	s.mux.HandleFunc("/export/events.ics", s.handleExportEvents)
	s.mux.HandleFunc("/export/season.ics", s.handleExportSeason)

	s.mux.HandleFunc("/api/deploy/start", s.handleDeployStart)
	s.mux.HandleFunc("/api/deploy/logs", s.handleDeployLogs)
	s.mux.HandleFunc("/api/deploy/pull", s.handleDeployPull)

	s.mux.HandleFunc("/api/names/lookup", s.handleNamesLookup)
	s.mux.HandleFunc("/api/names/replace", s.handleNamesReplace)

	// Only the page Chromium screenshots.
	s.captureMux.HandleFunc("/calendar", s.handleCalendarPage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last rendered PNG preview from disk.
// http.ServeFile returns the appropriate status for a missing file.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.PreviewPath())
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// decodeJSON reads a request body into dst and runs struct validation.
func (s *Server) decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return s.validate.Struct(dst)
}
