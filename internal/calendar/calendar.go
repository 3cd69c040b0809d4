package calendar

import (
	"time"

	"zeitachse/internal/canon"
	"zeitachse/internal/model"
	"zeitachse/internal/store"
)

// ViewState is the explicit calendar view state threaded through render
// calls: the selected day plus the visible month. There is no ambient
// session state; callers hold a ViewState and pass it in.
type ViewState struct {
	SelectedDate time.Time
	VisibleYear  int
	VisibleMonth time.Month
}

// NewViewState builds a view focused on the given day, with the visible
// month following the selection.
func NewViewState(selected time.Time) ViewState {
	return ViewState{
		SelectedDate: selected,
		VisibleYear:  selected.Year(),
		VisibleMonth: selected.Month(),
	}
}

// FollowSelection moves the visible month to the month of the selected date.
func (v ViewState) FollowSelection() ViewState {
	v.VisibleYear = v.SelectedDate.Year()
	v.VisibleMonth = v.SelectedDate.Month()
	return v
}

// ShiftMonth returns the view moved delta months forward (or back for
// negative delta), wrapping across year boundaries.
func (v ViewState) ShiftMonth(delta int) ViewState {
	y, m := MonthShift(v.VisibleYear, v.VisibleMonth, delta)
	v.VisibleYear = y
	v.VisibleMonth = m
	return v
}

// MonthShift normalizes (year, month+delta) so the month stays in 1..12.
func MonthShift(year int, month time.Month, delta int) (int, time.Month) {
	m := int(month) + delta
	for m < 1 {
		m += 12
		year--
	}
	for m > 12 {
		m -= 12
		year++
	}
	return year, time.Month(m)
}

// DayCell is one cell of the month grid. Blank leading/trailing cells have
// a zero Day.
type DayCell struct {
	Day       int    `json:"day"`
	Date      string `json:"date,omitempty"`
	Matchday  int    `json:"matchday,omitempty"`
	HasEvents bool   `json:"has_events"`
	Selected  bool   `json:"selected"`
}

// MonthGrid is a Monday-first month view: a header row of weekday labels and
// one row of seven DayCells per calendar week.
type MonthGrid struct {
	Year    int          `json:"year"`
	Month   time.Month   `json:"month"`
	Weekday []string     `json:"weekdays"`
	Weeks   [][7]DayCell `json:"weeks"`
}

var weekdayHeaders = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// BuildMonth renders the visible month of the view into a MonthGrid,
// annotating each day with its matchday number for the given season (if the
// day lies on the cadence) and whether events exist on it.
func BuildMonth(cfg *canon.Config, season int, view ViewState, events []model.Event) MonthGrid {
	grid := MonthGrid{
		Year:    view.VisibleYear,
		Month:   view.VisibleMonth,
		Weekday: weekdayHeaders,
	}

	first := time.Date(view.VisibleYear, view.VisibleMonth, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	// Monday-first column index of the 1st.
	lead := (int(first.Weekday()) + 6) % 7

	var week [7]DayCell
	col := lead
	selected := canon.FormatDate(view.SelectedDate)

	for day := 1; day <= daysInMonth; day++ {
		d := time.Date(view.VisibleYear, view.VisibleMonth, day, 0, 0, 0, 0, time.UTC)
		iso := canon.FormatDate(d)

		cell := DayCell{
			Day:       day,
			Date:      iso,
			HasEvents: store.HasEventOn(events, iso),
			Selected:  iso == selected,
		}
		if md, ok := cfg.MatchdayForDate(season, d); ok {
			cell.Matchday = md
		}
		week[col] = cell

		col++
		if col == 7 {
			grid.Weeks = append(grid.Weeks, week)
			week = [7]DayCell{}
			col = 0
		}
	}
	if col != 0 {
		grid.Weeks = append(grid.Weeks, week)
	}

	return grid
}

// DaySummary is the day view: the matchday annotation (if any) plus the
// entries attached to that day.
type DaySummary struct {
	Date     string        `json:"date"`
	Weekday  string        `json:"weekday"`
	Matchday int           `json:"matchday,omitempty"`
	Events   []model.Event `json:"events"`
}

// BuildDay assembles the day view for the given date.
func BuildDay(cfg *canon.Config, season int, date time.Time, events []model.Event) DaySummary {
	iso := canon.FormatDate(date)
	sum := DaySummary{
		Date:    iso,
		Weekday: date.Weekday().String(),
		Events:  store.EventsOn(events, iso),
	}
	if sum.Events == nil {
		sum.Events = []model.Event{}
	}
	if md, ok := cfg.MatchdayForDate(season, date); ok {
		sum.Matchday = md
	}
	return sum
}
