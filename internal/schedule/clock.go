package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tsureben-backend/internal/models"
)

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15:04"
)

var (
	ErrInvalidClock     = errors.New("schedule: invalid HH:MM time")
	ErrInvalidDate      = errors.New("schedule: invalid YYYY-MM-DD date")
	ErrInvalidTimeRange = errors.New("schedule: start must precede end")
)

// Clock is a wall-clock time of day in minutes since midnight. 1440 is "24:00".
type Clock int

const Midnight Clock = 24 * 60

// ParseClock parses "HH:MM". Hours run 00..24; 24 is only valid as "24:00".
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) Hour() int {
	return int(c) / 60
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Seconds returns the clock as seconds since midnight.
func (c Clock) Seconds() int {
	return int(c) * 60
}

// HourBucket is the storage key of an entry starting at c.
func (c Clock) HourBucket() string {
	return fmt.Sprintf("%02d", c.Hour())
}

// Validate checks the write-path invariants of a plan entry.
func Validate(e models.StudyPlanEntry) error {
	if _, err := time.Parse(DateFormat, e.Date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, e.Date)
	}
	_, _, err := Bounds(e)
	return err
}

// Bounds parses the start and end of an entry and checks start < end.
func Bounds(e models.StudyPlanEntry) (Clock, Clock, error) {
	start, err := ParseClock(e.Start)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseClock(e.End)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, e.Start, e.End)
	}
	return start, end, nil
}
