package web

import (
	"errors"
	"net/http"
	"time"

	"zeitachse/internal/calendar"
	"zeitachse/internal/canon"
	"zeitachse/internal/deploy"
	appLog "zeitachse/internal/log"
	"zeitachse/internal/model"
	"zeitachse/internal/store"
)

// statusForCanonErr maps the allocator's sentinel errors onto HTTP statuses.
// Unknown season / content type behave like lookups against config, bad
// input stays a 400, and the future gate is a conflict with the in-world
// clock.
func statusForCanonErr(err error) int {
	switch {
	case errors.Is(err, canon.ErrMissingSeason), errors.Is(err, canon.ErrUnknownContentType):
		return http.StatusNotFound
	case errors.Is(err, canon.ErrFutureBlocked):
		return http.StatusConflict
	case errors.Is(err, canon.ErrConfigNotFound), errors.Is(err, canon.ErrConfigSchema):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// canonResponse is the JSON summary of the loaded canon config.
type canonResponse struct {
	WorldToday           string            `json:"world_today"`
	Seasons              map[int]string    `json:"season_start"`
	MatchdayIntervalDays int               `json:"matchday_interval_days"`
	OffsetRules          map[string][2]int `json:"offset_rules"`
}

func (s *Server) handleCanon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	s.mu.Lock()
	cc := s.canon
	s.mu.Unlock()

	resp := canonResponse{
		WorldToday:           canon.FormatDate(cc.WorldToday),
		Seasons:              map[int]string{},
		MatchdayIntervalDays: cc.MatchdayIntervalDays,
		OffsetRules:          map[string][2]int{},
	}
	for season, start := range cc.SeasonStart {
		resp.Seasons[season] = canon.FormatDate(start)
	}
	for name, rule := range cc.OffsetRules {
		resp.OffsetRules[name] = [2]int{rule.Min, rule.Max}
	}
	writeJSON(w, http.StatusOK, resp)
}

// allocateRequest is the allocator form payload. Schedule additionally
// records the computed date as a content event.
type allocateRequest struct {
	Season      int    `json:"season" validate:"required,min=1"`
	Matchday    int    `json:"matchday" validate:"required,min=1"`
	ContentType string `json:"content_type" validate:"required"`
	Offset      int    `json:"offset"`
	AllowFuture bool   `json:"allow_future"`
	Schedule    bool   `json:"schedule"`
	Title       string `json:"title"`
	Notes       string `json:"notes"`
}

type allocateResponse struct {
	Date         string       `json:"date"`
	Weekday      string       `json:"weekday"`
	MatchdayDate string       `json:"matchday_date"`
	Event        *model.Event `json:"event,omitempty"`
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req allocateRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Scheduled content may deliberately live past world_today; the gate
	// applies to the plain compute path.
	allowFuture := req.AllowFuture || req.Schedule

	d, err := s.canon.Allocate(req.Season, req.Matchday, req.ContentType, req.Offset, allowFuture)
	if err != nil {
		writeError(w, statusForCanonErr(err), err.Error())
		return
	}
	base, err := s.canon.MatchdayDate(req.Season, req.Matchday)
	if err != nil {
		writeError(w, statusForCanonErr(err), err.Error())
		return
	}

	resp := allocateResponse{
		Date:         canon.FormatDate(d),
		Weekday:      d.Weekday().String(),
		MatchdayDate: canon.FormatDate(base),
	}

	if req.Schedule {
		title := req.Title
		if title == "" {
			title = contentTitle(req)
		}
		meta := &model.ContentMeta{
			Season:      req.Season,
			Matchday:    req.Matchday,
			ContentType: req.ContentType,
			Offset:      req.Offset,
		}
		ev := store.AddEvent(&s.events, canon.FormatDate(d), title, req.Notes, model.KindContent, meta)
		if err := store.SaveEvents(s.cfg.EventsPath(), s.events); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Event = &ev
	}

	// Remember the form values, matching the interactive flow.
	s.state = model.UIState{
		Season:      req.Season,
		Matchday:    req.Matchday,
		ContentType: req.ContentType,
		Offset:      req.Offset,
		AllowFuture: req.AllowFuture,
	}
	if err := store.SaveState(s.cfg.StatePath(), s.state); err != nil {
		appLog.Error("failed to persist ui state", err)
	}

	writeJSON(w, http.StatusOK, resp)
}

func contentTitle(req allocateRequest) string {
	return model.ContentEventTitle(req.ContentType, req.Season, req.Matchday, req.Offset)
}

type tableRow struct {
	Matchday int    `json:"matchday"`
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
}

func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	q := r.URL.Query()
	season := parseIntDefault(q.Get("season"), 0)
	start := parseIntDefault(q.Get("start"), 1)
	end := parseIntDefault(q.Get("end"), 10)
	if end < start {
		writeError(w, http.StatusBadRequest, "end must be >= start")
		return
	}

	s.mu.Lock()
	cc := s.canon
	s.mu.Unlock()

	rows := make([]tableRow, 0, end-start+1)
	for md := start; md <= end; md++ {
		d, err := cc.MatchdayDate(season, md)
		if err != nil {
			writeError(w, statusForCanonErr(err), err.Error())
			return
		}
		rows = append(rows, tableRow{Matchday: md, Date: canon.FormatDate(d), Weekday: d.Weekday().String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"season":   season,
		"interval": cc.MatchdayIntervalDays,
		"rows":     rows,
	})
}

// calendarResponse bundles the month grid with the selected day view, the
// whole view state round-tripping through the client.
type calendarResponse struct {
	Season   int                 `json:"season"`
	Selected string              `json:"selected"`
	Grid     calendar.MonthGrid  `json:"grid"`
	Day      calendar.DaySummary `json:"day"`
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	view, season, err := s.viewFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, calendarResponse{
		Season:   season,
		Selected: canon.FormatDate(view.SelectedDate),
		Grid:     calendar.BuildMonth(s.canon, season, view, s.events),
		Day:      calendar.BuildDay(s.canon, season, view.SelectedDate, s.events),
	})
}

// viewFromQuery derives the calendar view state from query parameters,
// falling back to the persisted form state and the matchday it points at.
// Callers must hold s.mu.
func (s *Server) viewFromQuery(r *http.Request) (calendar.ViewState, int, error) {
	q := r.URL.Query()

	season := parseIntDefault(q.Get("season"), s.state.Season)

	selected := s.defaultSelectedDate(season)
	if raw := q.Get("selected"); raw != "" {
		d, err := canon.ParseDate(raw)
		if err != nil {
			return calendar.ViewState{}, 0, err
		}
		selected = d
	}

	view := calendar.NewViewState(selected)
	if y := parseIntDefault(q.Get("year"), 0); y != 0 {
		view.VisibleYear = y
	}
	if m := parseIntDefault(q.Get("month"), 0); m >= 1 && m <= 12 {
		view.VisibleMonth = time.Month(m)
	}
	return view, season, nil
}

// defaultSelectedDate picks the matchday of the persisted form state, or
// world today when that fails. Callers must hold s.mu.
func (s *Server) defaultSelectedDate(season int) time.Time {
	if d, err := s.canon.MatchdayDate(season, s.state.Matchday); err == nil {
		return d
	}
	return s.canon.WorldToday
}

// eventRequest is the free-entry form payload.
type eventRequest struct {
	Date  string `json:"date" validate:"required"`
	Title string `json:"title" validate:"required"`
	Notes string `json:"notes"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		defer s.mu.Unlock()

		if date := r.URL.Query().Get("date"); date != "" {
			evs := store.EventsOn(s.events, date)
			if evs == nil {
				evs = []model.Event{}
			}
			writeJSON(w, http.StatusOK, evs)
			return
		}
		writeJSON(w, http.StatusOK, s.events)

	case http.MethodPost:
		var req eventRequest
		if err := s.decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := canon.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		ev := store.AddEvent(&s.events, req.Date, req.Title, req.Notes, model.KindFree, nil)
		if err := store.SaveEvents(s.cfg.EventsPath(), s.events); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, ev)

	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeError(w, http.StatusBadRequest, "id is required")
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		store.DeleteEvent(&s.events, id)
		if err := store.SaveEvents(s.cfg.EventsPath(), s.events); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET, POST or DELETE")
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		st := s.state
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, st)

	case http.MethodPut:
		var st model.UIState
		if err := s.decodeJSON(r, &st); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		s.state = st
		if err := store.SaveState(s.cfg.StatePath(), st); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, st)

	case http.MethodDelete:
		s.mu.Lock()
		defer s.mu.Unlock()

		if err := store.DeleteState(s.cfg.StatePath()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.state = model.DefaultUIState()
		writeJSON(w, http.StatusOK, s.state)

	default:
		writeError(w, http.StatusMethodNotAllowed, "GET, PUT or DELETE")
	}
}

// seasonRequest adds a new season start to the canon config file.
type seasonRequest struct {
	Season int    `json:"season" validate:"required,min=1"`
	Start  string `json:"start" validate:"required"`
}

func (s *Server) handleSeasons(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	var req seasonRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := canon.ParseDate(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.cfg.CanonConfigPath()
	if err := canon.WriteSeasonStart(path, req.Season, start); err != nil {
		writeError(w, statusForCanonErr(err), err.Error())
		return
	}

	// The canon config is per-session immutable; rewriting it on disk
	// starts a fresh "session" by reloading it here.
	cc, err := canon.Load(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.canon = cc

	appLog.Info("season start written", "season", req.Season, "start", req.Start)
	writeJSON(w, http.StatusOK, map[string]any{
		"season": req.Season,
		"start":  req.Start,
	})
}

func (s *Server) handleDeployStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	service := r.URL.Query().Get("service")

	res, err := s.runner.StartService(r.Context(), service)
	if err != nil {
		writeError(w, deployErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeployLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	q := r.URL.Query()
	service := q.Get("service")
	lines := parseIntDefault(q.Get("lines"), 0)

	res, err := s.runner.Logs(r.Context(), service, lines)
	if err != nil {
		writeError(w, deployErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeployPull(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	branch := r.URL.Query().Get("branch")

	res, err := s.runner.PullData(r.Context(), branch)
	if err != nil {
		writeError(w, deployErrStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func deployErrStatus(err error) int {
	switch {
	case errors.Is(err, deploy.ErrUnknownService):
		return http.StatusNotFound
	case errors.Is(err, deploy.ErrNoPullScript):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleNamesLookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}
	if s.mapper == nil {
		writeError(w, http.StatusNotImplemented, "no name mapping configured")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	writeJSON(w, http.StatusOK, s.mapper.Lookup(q))
}

type replaceRequest struct {
	Text string `json:"text" validate:"required"`
}

func (s *Server) handleNamesReplace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}
	if s.mapper == nil {
		writeError(w, http.StatusNotImplemented, "no name mapping configured")
		return
	}
	var req replaceRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": s.mapper.ReplaceInText(req.Text)})
}
