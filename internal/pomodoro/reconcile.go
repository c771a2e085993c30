package pomodoro

import (
	"fmt"

	"tsureben-backend/internal/models"
)

// LocatePlaceholder returns the index of the last in-progress entry started at
// startTime, or -1.
func LocatePlaceholder(entries []models.PomodoroLogEntry, startTime string) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].InProgress() && entries[i].StartTime == startTime {
			return i
		}
	}
	return -1
}

// LocateRecorded returns the index of the last completed entry started at
// startTime, or -1.
func LocateRecorded(entries []models.PomodoroLogEntry, startTime string) int {
	for i := len(entries) - 1; i >= 0; i-- {
		if !entries[i].InProgress() && entries[i].StartTime == startTime {
			return i
		}
	}
	return -1
}

// DetectOrphan reports ErrOrphanedSession when there is no anchor but the day
// still holds an in-progress entry. Such entries are left as they are.
func DetectOrphan(anchor *Anchor, dayLogs []models.PomodoroLogEntry) error {
	if anchor != nil {
		return nil
	}
	for _, e := range dayLogs {
		if e.InProgress() {
			return fmt.Errorf("%w: started %s %s", ErrOrphanedSession, e.Date, e.StartTime)
		}
	}
	return nil
}
