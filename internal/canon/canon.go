package canon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// DateLayout is the ISO calendar date format used everywhere in-world dates
// cross a file or API boundary.
const DateLayout = "2006-01-02"

// defaultMatchdayInterval is used when the config omits matchday_interval_days.
const defaultMatchdayInterval = 3

// Config is the immutable canon timeline configuration. It is loaded once per
// session; the season-creation flow may rewrite the file on disk, but a
// running session keeps its loaded copy until it reloads.
type Config struct {
	// WorldToday is the "present moment" of the fictional universe. It is
	// the default upper bound for content scheduling.
	WorldToday time.Time

	// SeasonStart maps a season number to the calendar date of its
	// matchday 1.
	SeasonStart map[int]time.Time

	// MatchdayIntervalDays is the fixed spacing between matchdays.
	MatchdayIntervalDays int

	// OffsetRules maps a content type name to its inclusive day-offset
	// range relative to a matchday date. Content types are config-driven
	// string keys, not a compiled enum.
	OffsetRules map[string]OffsetRule
}

// OffsetRule is an inclusive [Min, Max] day-offset range. Min may be negative
// (content scheduled before its matchday) and Min == Max pins a fixed offset.
type OffsetRule struct {
	Min int
	Max int
}

// Seasons returns the configured season numbers in ascending order.
func (c *Config) Seasons() []int {
	out := make([]int, 0, len(c.SeasonStart))
	for s := range c.SeasonStart {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

// ContentTypes returns the configured content type names in sorted order.
func (c *Config) ContentTypes() []string {
	out := make([]string, 0, len(c.OffsetRules))
	for k := range c.OffsetRules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// rawConfig mirrors the JSON file shape before validation.
type rawConfig struct {
	WorldToday           string                       `json:"world_today"`
	SeasonStart          map[string]string            `json:"season_start"`
	MatchdayIntervalDays *int                         `json:"matchday_interval_days"`
	OffsetRules          map[string][]json.RawMessage `json:"offset_rules"`
}

// Load reads and validates the canon config JSON at path.
//
// Failure modes:
//   - missing file: ErrConfigNotFound
//   - malformed JSON, missing/empty season_start or offset_rules, offset
//     rules that are not exactly [min, max] integer pairs, min > max,
//     non-positive interval: ErrConfigSchema
//   - malformed ISO dates: ErrConfigSchema wrapping the parse error
//
// Load is a pure read; there is no caching beyond the caller holding the
// returned value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigSchema, err)
	}

	if len(raw.SeasonStart) == 0 {
		return nil, fmt.Errorf("%w: %q must be a non-empty object", ErrConfigSchema, "season_start")
	}
	if len(raw.OffsetRules) == 0 {
		return nil, fmt.Errorf("%w: %q must be a non-empty object", ErrConfigSchema, "offset_rules")
	}

	worldToday, err := ParseDate(raw.WorldToday)
	if err != nil {
		return nil, fmt.Errorf("%w: world_today: %v", ErrConfigSchema, err)
	}

	seasonStart := make(map[int]time.Time, len(raw.SeasonStart))
	for key, val := range raw.SeasonStart {
		season, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: season_start key %q is not a season number", ErrConfigSchema, key)
		}
		start, err := ParseDate(val)
		if err != nil {
			return nil, fmt.Errorf("%w: season_start[%s]: %v", ErrConfigSchema, key, err)
		}
		seasonStart[season] = start
	}

	interval := defaultMatchdayInterval
	if raw.MatchdayIntervalDays != nil {
		interval = *raw.MatchdayIntervalDays
	}
	if interval < 1 {
		return nil, fmt.Errorf("%w: matchday_interval_days must be positive, got %d", ErrConfigSchema, interval)
	}

	offsetRules := make(map[string]OffsetRule, len(raw.OffsetRules))
	for name, pair := range raw.OffsetRules {
		rule, err := parseOffsetRule(pair)
		if err != nil {
			return nil, fmt.Errorf("%w: offset_rules[%s]: %v", ErrConfigSchema, name, err)
		}
		offsetRules[name] = rule
	}

	return &Config{
		WorldToday:           worldToday,
		SeasonStart:          seasonStart,
		MatchdayIntervalDays: interval,
		OffsetRules:          offsetRules,
	}, nil
}

// parseOffsetRule validates that the raw value is exactly a two-element
// integer array and that min <= max.
func parseOffsetRule(pair []json.RawMessage) (OffsetRule, error) {
	if len(pair) != 2 {
		return OffsetRule{}, fmt.Errorf("must be a [min, max] pair, got %d elements", len(pair))
	}
	vals := make([]int, 2)
	for i, rawVal := range pair {
		var n json.Number
		if err := json.Unmarshal(rawVal, &n); err != nil {
			return OffsetRule{}, errors.New("must be a [min, max] pair of integers")
		}
		v, err := n.Int64()
		if err != nil {
			return OffsetRule{}, fmt.Errorf("element %d is not an integer: %s", i, n.String())
		}
		vals[i] = int(v)
	}
	if vals[0] > vals[1] {
		return OffsetRule{}, fmt.Errorf("min %d exceeds max %d", vals[0], vals[1])
	}
	return OffsetRule{Min: vals[0], Max: vals[1]}, nil
}

// ParseDate parses an ISO YYYY-MM-DD string into a midnight-UTC time.Time.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDate renders a date as ISO YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// WriteSeasonStart rewrites the canon config file at path, adding or
// replacing the matchday-1 date for the given season while preserving every
// other key verbatim. A running session must reload to observe the change.
func WriteSeasonStart(path string, season int, start time.Time) error {
	if season < 1 {
		return fmt.Errorf("%w: season must be >= 1, got %d", ErrConfigSchema, season)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigSchema, err)
	}

	starts, ok := doc["season_start"].(map[string]any)
	if !ok {
		starts = map[string]any{}
	}
	starts[strconv.Itoa(season)] = FormatDate(start)
	doc["season_start"] = starts

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, append(out, '\n'))
}

// writeFileAtomic writes data via a temp file in the same directory followed
// by a rename, so a crash mid-write never leaves a truncated file behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".zeitachse-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
