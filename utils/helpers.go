package utils

import (
	"fmt"
	"strconv"
	"time"
)

const (
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	MaxLimit          = 500
)

// ParseWindowDays reads a trailing-window length in days. An empty value
// means DefaultWindowDays.
func ParseWindowDays(raw string) (int, error) {
	if raw == "" {
		return DefaultWindowDays, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 || days > MaxWindowDays {
		return 0, fmt.Errorf("days must be an integer between 1 and %d", MaxWindowDays)
	}
	return days, nil
}

// ParseLimit reads a positive row limit, defaulting to def.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > MaxLimit {
		return 0, fmt.Errorf("limit must be an integer between 1 and %d", MaxLimit)
	}
	return limit, nil
}

// WindowStart is now minus the given number of days.
func WindowStart(now time.Time, days int) time.Time {
	return now.AddDate(0, 0, -days)
}
