package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"rently/internal/models"
)

// DayKey normalizes an instant to its calendar day in UTC. Two instants on
// the same day but different times (or zones) map to the same key.
func DayKey(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDay renders a day key as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return DayKey(t).Format("2006-01-02")
}

// ParseDay parses a YYYY-MM-DD string into a day key.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DayKey(t), nil
}

// ExpandRange materializes every calendar day from start to end inclusive.
// Returns nil when end is before start.
func ExpandRange(start, end time.Time) []time.Time {
	first := DayKey(start)
	last := DayKey(end)
	if last.Before(first) {
		return nil
	}

	var days []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Conflicts returns the subset of candidate days already present in either
// the reserved or the confirmed set, in chronological order without
// duplicates. Input ordering does not matter.
func Conflicts(reserved, confirmed, candidates []time.Time) []time.Time {
	taken := make(map[time.Time]struct{}, len(reserved)+len(confirmed))
	for _, d := range reserved {
		taken[DayKey(d)] = struct{}{}
	}
	for _, d := range confirmed {
		taken[DayKey(d)] = struct{}{}
	}

	seen := make(map[time.Time]struct{}, len(candidates))
	var conflicts []time.Time
	for _, c := range candidates {
		key := DayKey(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := taken[key]; ok {
			conflicts = append(conflicts, key)
		}
	}

	sortDays(conflicts)
	return conflicts
}

// ConstraintViolations returns the candidate days that fall outside the
// listing's availability settings. Empty month or weekday lists mean all
// values are allowed.
func ConstraintViolations(settings models.AvailabilitySettings, candidates []time.Time) []time.Time {
	months := lowerSet(settings.Months)
	weekdays := lowerSet(settings.DaysOfWeek)

	var violations []time.Time
	for _, c := range candidates {
		key := DayKey(c)
		if len(months) > 0 {
			if _, ok := months[strings.ToLower(key.Month().String())]; !ok {
				violations = append(violations, key)
				continue
			}
		}
		if len(weekdays) > 0 {
			if _, ok := weekdays[strings.ToLower(key.Weekday().String())]; !ok {
				violations = append(violations, key)
			}
		}
	}

	sortDays(violations)
	return violations
}

// WithinHours reports whether the time of day of t falls inside an operating
// hours spec like "9:00 AM - 5:00 PM". An empty spec means always open.
func WithinHours(spec string, t time.Time) (bool, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return true, nil
	}

	openMin, closeMin, err := parseHours(spec)
	if err != nil {
		return false, err
	}

	minutes := t.Hour()*60 + t.Minute()
	return minutes >= openMin && minutes <= closeMin, nil
}

// ValidHoursSpec reports whether spec parses as operating hours. An empty
// spec is valid and means always open.
func ValidHoursSpec(spec string) bool {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return true
	}
	_, _, err := parseHours(spec)
	return err == nil
}

func parseHours(spec string) (int, int, error) {
	parts := strings.Split(spec, " - ")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid hours spec %q", spec)
	}

	openMin, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	closeMin, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if closeMin < openMin {
		return 0, 0, fmt.Errorf("hours spec %q closes before it opens", spec)
	}
	return openMin, closeMin, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("3:04 PM", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func lowerSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			set[v] = struct{}{}
		}
	}
	return set
}

func sortDays(days []time.Time) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}
