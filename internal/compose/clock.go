package compose

import (
	"fmt"
	"strings"
	"time"

	"herald/internal/services"
)

// At combines a calendar date with a 12-hour clock reading in UTC.
// meridiem is "AM" or "PM", case-insensitive.
func At(date time.Time, hour, minute int, meridiem string) (time.Time, error) {
	if hour < 1 || hour > 12 {
		return time.Time{}, services.Wrap(services.ErrValidation, "compose", "clock", fmt.Sprintf("hour %d out of range 1-12", hour), nil)
	}
	if minute < 0 || minute > 59 {
		return time.Time{}, services.Wrap(services.ErrValidation, "compose", "clock", fmt.Sprintf("minute %d out of range 0-59", minute), nil)
	}
	hour24 := hour % 12
	switch strings.ToUpper(strings.TrimSpace(meridiem)) {
	case "AM":
	case "PM":
		hour24 += 12
	default:
		return time.Time{}, services.Wrap(services.ErrValidation, "compose", "clock", fmt.Sprintf("expected AM or PM, got %q", meridiem), nil)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, hour24, minute, 0, 0, time.UTC), nil
}

// ParseAt reads a date ("2006-01-02") and a 12-hour clock ("02:05 PM" or
// "2:05pm") as a UTC instant.
func ParseAt(date, clock string) (time.Time, error) {
	day, err := time.Parse(time.DateOnly, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "compose", "parse date", fmt.Sprintf("%q is not YYYY-MM-DD", date), nil)
	}
	normalized := strings.ToUpper(strings.Join(strings.Fields(clock), ""))
	if len(normalized) < 3 {
		return time.Time{}, services.Wrap(services.ErrValidation, "compose", "parse clock", fmt.Sprintf("%q is not HH:MM AM/PM", clock), nil)
	}
	meridiem := normalized[len(normalized)-2:]
	var hour, minute int
	if _, err := fmt.Sscanf(normalized[:len(normalized)-2], "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "compose", "parse clock", fmt.Sprintf("%q is not HH:MM AM/PM", clock), nil)
	}
	return At(day, hour, minute, meridiem)
}
