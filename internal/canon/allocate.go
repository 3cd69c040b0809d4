package canon

import (
	"fmt"
	"time"
)

// MatchdayDate computes the calendar date of the given (season, matchday).
// Matchday numbering is 1-based: matchday 1 is exactly the season's start
// date, each later matchday follows after MatchdayIntervalDays days.
func (c *Config) MatchdayDate(season, matchday int) (time.Time, error) {
	start, ok := c.SeasonStart[season]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: season %d has no season_start entry, add it to the config", ErrMissingSeason, season)
	}
	if matchday < 1 {
		return time.Time{}, fmt.Errorf("%w: got %d", ErrBadMatchday, matchday)
	}
	return start.AddDate(0, 0, (matchday-1)*c.MatchdayIntervalDays), nil
}

// Allocate computes the final in-world date for a piece of content:
// matchday date plus offsetDays, where the offset must lie within the
// content type's configured inclusive range.
//
// Unless allowFuture is set, a candidate date strictly after WorldToday is
// rejected. The gate exists to prevent accidentally publishing content whose
// in-world date is ahead of the currently-published present; the explicit
// override skips the check entirely for deliberately pre-scheduled content.
func (c *Config) Allocate(season, matchday int, contentType string, offsetDays int, allowFuture bool) (time.Time, error) {
	base, err := c.MatchdayDate(season, matchday)
	if err != nil {
		return time.Time{}, err
	}

	rule, ok := c.OffsetRules[contentType]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q, allowed types: %v", ErrUnknownContentType, contentType, c.ContentTypes())
	}
	if offsetDays < rule.Min || offsetDays > rule.Max {
		return time.Time{}, fmt.Errorf("%w: offset %d for %q, allowed %d..%d", ErrOffsetOutOfBounds, offsetDays, contentType, rule.Min, rule.Max)
	}

	candidate := base.AddDate(0, 0, offsetDays)

	if !allowFuture && candidate.After(c.WorldToday) {
		return time.Time{}, fmt.Errorf("%w: %s is after world_today %s, advance world_today in the config or allow future content for planned items",
			ErrFutureBlocked, FormatDate(candidate), FormatDate(c.WorldToday))
	}

	return candidate, nil
}

// MatchdayForDate is the inverse of MatchdayDate, used for calendar display
// annotation. It reports which matchday falls on the given date, or false
// when the season has no configured start, the date precedes the season
// start, or the date does not land on the matchday cadence. None of those
// cases is an error.
func (c *Config) MatchdayForDate(season int, date time.Time) (int, bool) {
	start, ok := c.SeasonStart[season]
	if !ok {
		return 0, false
	}
	elapsed := daysBetween(start, date)
	if elapsed < 0 {
		return 0, false
	}
	if elapsed%c.MatchdayIntervalDays != 0 {
		return 0, false
	}
	return elapsed/c.MatchdayIntervalDays + 1, true
}

// daysBetween returns the whole-day difference b - a between two
// midnight-normalized dates. Computed on epoch-day integers rather than a
// time.Duration, which would overflow past ~292 years.
func daysBetween(a, b time.Time) int {
	const daySeconds = 24 * 60 * 60
	return int(b.Unix()/daySeconds - a.Unix()/daySeconds)
}
