package export

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"zeitachse/internal/canon"
	appLog "zeitachse/internal/log"
	"zeitachse/internal/model"
)

const productID = "-//HIGHspeed//Zeitachse//EN"

// uidDomain suffixes every generated UID so exports stay stable across runs.
const uidDomain = "zeitachse.local"

// EventsCalendar serializes the stored calendar entries as all-day VEVENTs.
// Entries with an unparseable date are skipped and logged rather than
// aborting the export; the store tolerates such records by design.
func EventsCalendar(events []model.Event, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Zeitachse Events")

	for _, ev := range events {
		day, err := canon.ParseDate(ev.Date)
		if err != nil {
			appLog.Warn("skipping event with bad date in ICS export", "id", ev.ID, "date", ev.Date)
			continue
		}

		ve := cal.AddEvent(fmt.Sprintf("%s@%s", ev.ID, uidDomain))
		ve.SetDtStampTime(now.UTC())
		ve.SetSummary(ev.Title)
		ve.SetAllDayStartAt(day)
		ve.SetAllDayEndAt(day.AddDate(0, 0, 1))

		desc := ev.Notes
		if ev.Kind == model.KindContent && ev.Meta != nil {
			meta := fmt.Sprintf("S%d MD%d %s (offset %d)", ev.Meta.Season, ev.Meta.Matchday, ev.Meta.ContentType, ev.Meta.Offset)
			if desc == "" {
				desc = meta
			} else {
				desc = desc + "\n" + meta
			}
		}
		if desc != "" {
			ve.SetDescription(desc)
		}
	}

	return cal.Serialize()
}

// SeasonCalendar serializes the matchday cadence of one season as a single
// recurring all-day VEVENT carrying an RRULE, covering matchdays 1..count.
func SeasonCalendar(cfg *canon.Config, season, count int, now time.Time) (string, error) {
	if count < 1 {
		count = 1
	}
	start, err := cfg.MatchdayDate(season, 1)
	if err != nil {
		return "", err
	}

	ruleStr := fmt.Sprintf("FREQ=DAILY;INTERVAL=%d;COUNT=%d", cfg.MatchdayIntervalDays, count)
	r, err := rrule.StrToRRule(ruleStr)
	if err != nil {
		return "", fmt.Errorf("build season rrule: %w", err)
	}
	r.DTStart(start)

	occurrences := r.All()
	last := start
	if len(occurrences) > 0 {
		last = occurrences[len(occurrences)-1]
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(fmt.Sprintf("Season %d Matchdays", season))

	ve := cal.AddEvent(fmt.Sprintf("season-%d-matchdays@%s", season, uidDomain))
	ve.SetDtStampTime(now.UTC())
	ve.SetSummary(fmt.Sprintf("Season %d Matchday", season))
	ve.SetDescription(fmt.Sprintf("Matchdays 1..%d, every %d days: %s .. %s",
		count, cfg.MatchdayIntervalDays, canon.FormatDate(start), canon.FormatDate(last)))
	ve.SetAllDayStartAt(start)
	ve.SetAllDayEndAt(start.AddDate(0, 0, 1))
	ve.AddRrule(ruleStr)

	return cal.Serialize(), nil
}
