package web

import (
	"html/template"
	"net/http"
	"time"

	"zeitachse/internal/calendar"
	"zeitachse/internal/canon"
	"zeitachse/internal/export"
	appLog "zeitachse/internal/log"
)

// calendarPageTmpl is the month view captured by the preview pipeline. It is
// rendered server-side so the page is complete on first paint; the capture
// waits on the data-ready attribute of the root element.
var calendarPageTmpl = template.Must(template.New("calendar").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Zeitachse {{.Grid.Year}}-{{printf "%02d" .MonthNum}}</title>
<style>
  body { font-family: system-ui, sans-serif; background: #101418; color: #e8e8e8; margin: 24px; }
  h1 { font-size: 28px; margin-bottom: 4px; }
  .sub { color: #8aa; margin-bottom: 16px; }
  table { border-collapse: collapse; width: 100%; }
  th, td { border: 1px solid #2a3038; width: 14.28%; vertical-align: top; padding: 6px; height: 84px; }
  th { height: auto; background: #1a2028; }
  td.blank { background: #0c0f13; }
  td.selected { outline: 3px solid #e8b339; }
  .day { font-size: 18px; font-weight: 600; }
  .md { display: inline-block; background: #295e8f; border-radius: 4px; padding: 1px 5px; font-size: 12px; margin-top: 4px; }
  .dot { color: #e8b339; font-size: 20px; line-height: 10px; }
</style>
</head>
<body>
<div data-ready="true">
  <h1>Season {{.Season}} &middot; {{.Grid.Year}}-{{printf "%02d" .MonthNum}}</h1>
  <div class="sub">world today {{.WorldToday}} &middot; matchday every {{.Interval}} days</div>
  <table>
    <tr>{{range .Grid.Weekday}}<th>{{.}}</th>{{end}}</tr>
    {{range .Grid.Weeks}}
    <tr>
      {{range .}}
      {{if eq .Day 0}}<td class="blank"></td>{{else}}
      <td{{if .Selected}} class="selected"{{end}}>
        <span class="day">{{.Day}}</span>
        {{if .HasEvents}}<span class="dot">&bull;</span>{{end}}
        {{if .Matchday}}<div><span class="md">MD{{.Matchday}}</span></div>{{end}}
      </td>
      {{end}}
      {{end}}
    </tr>
    {{end}}
  </table>
</div>
</body>
</html>
`))

type calendarPageData struct {
	Season     int
	WorldToday string
	Interval   int
	MonthNum   int
	Grid       calendar.MonthGrid
}

// handleCalendarPage serves the HTML month view. Query parameters mirror
// /api/calendar: season, year, month, selected.
func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	s.mu.Lock()
	view, season, err := s.viewFromQuery(r)
	if err != nil {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	data := calendarPageData{
		Season:     season,
		WorldToday: canon.FormatDate(s.canon.WorldToday),
		Interval:   s.canon.MatchdayIntervalDays,
		MonthNum:   int(view.VisibleMonth),
		Grid:       calendar.BuildMonth(s.canon, season, view, s.events),
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarPageTmpl.Execute(w, data); err != nil {
		appLog.Error("failed to render calendar page", err)
	}
}

func (s *Server) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	s.mu.Lock()
	body := export.EventsCalendar(s.events, time.Now())
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="zeitachse_events.ics"`)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleExportSeason(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET only")
		return
	}

	q := r.URL.Query()
	season := parseIntDefault(q.Get("season"), 0)
	count := parseIntDefault(q.Get("matchdays"), 26)

	s.mu.Lock()
	body, err := export.SeasonCalendar(s.canon, season, count, time.Now())
	s.mu.Unlock()
	if err != nil {
		writeError(w, statusForCanonErr(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="zeitachse_season.ics"`)
	_, _ = w.Write([]byte(body))
}
