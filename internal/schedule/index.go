// Package schedule answers time queries over one user's study plan for a day.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"tsureben-backend/internal/models"
)

type indexed struct {
	entry models.StudyPlanEntry
	start Clock
	end   Clock
}

// Index is an immutable snapshot of a day's plan entries.
//
// Entries are kept in ascending start order, then by topic, then in storage
// order. That order breaks ties for FindCovering and picks the master entry of
// a grid slot.
type Index struct {
	date    string
	loc     *time.Location
	entries []indexed
}

// NewIndex builds an index for date. Entries that fail validation are skipped.
func NewIndex(date string, loc *time.Location, entries []models.StudyPlanEntry) *Index {
	if loc == nil {
		loc = time.Local
	}
	ix := &Index{date: date, loc: loc}
	for _, e := range entries {
		start, end, err := Bounds(e)
		if err != nil {
			continue
		}
		ix.entries = append(ix.entries, indexed{entry: e, start: start, end: end})
	}
	sort.SliceStable(ix.entries, func(i, j int) bool {
		a, b := ix.entries[i], ix.entries[j]
		if a.start != b.start {
			return a.start < b.start
		}
		return a.entry.Topic < b.entry.Topic
	})
	return ix
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

// FindCovering returns the entry whose [start, end) contains at.
func (ix *Index) FindCovering(at time.Time) (models.StudyPlanEntry, bool) {
	at = at.In(ix.loc)
	if at.Format(DateFormat) != ix.date {
		return models.StudyPlanEntry{}, false
	}
	sec := at.Hour()*3600 + at.Minute()*60 + at.Second()
	for _, e := range ix.entries {
		if e.start.Seconds() <= sec && sec < e.end.Seconds() {
			return e.entry, true
		}
	}
	return models.StudyPlanEntry{}, false
}

// OverlapsWith returns every entry e with e.start < entry.end and e.end > entry.start.
func (ix *Index) OverlapsWith(entry models.StudyPlanEntry) []models.StudyPlanEntry {
	start, end, err := Bounds(entry)
	if err != nil {
		return nil
	}
	return ix.overlapping(start, end)
}

func (ix *Index) overlapping(start, end Clock) []models.StudyPlanEntry {
	var out []models.StudyPlanEntry
	for _, e := range ix.entries {
		if e.start < end && e.end > start {
			out = append(out, e.entry)
		}
	}
	return out
}

// MaskedHours returns the hour labels hidden because a block that started in an
// earlier hour still spans them. Only the starting hour renders a block.
func (ix *Index) MaskedHours() map[int]bool {
	masked := make(map[int]bool)
	for _, e := range ix.entries {
		durationHours := float64(e.end-e.start) / 60
		for i := 1; float64(i) < durationHours; i++ {
			masked[e.start.Hour()+i] = true
		}
	}
	return masked
}

type Slot struct {
	Hour    int                     `json:"hour"`
	Label   string                  `json:"label"`
	Masked  bool                    `json:"masked"`
	Entries []models.StudyPlanEntry `json:"entries"`
}

// Grid lays the day out as 24 hour slots. A slot whose hour starts an entry
// carries that entry and everything overlapping it; every entry appears in at
// most one slot.
func (ix *Index) Grid() []Slot {
	masked := ix.MaskedHours()
	shown := make(map[string]bool)
	slots := make([]Slot, 0, 24)

	for h := 0; h < 24; h++ {
		slot := Slot{Hour: h, Label: fmt.Sprintf("%02d:00", h), Masked: masked[h]}
		if slot.Masked {
			slots = append(slots, slot)
			continue
		}

		var master *indexed
		for i := range ix.entries {
			if ix.entries[i].start.Hour() == h {
				master = &ix.entries[i]
				break
			}
		}
		if master != nil {
			for _, e := range ix.overlapping(master.start, master.end) {
				if shown[e.Key()] {
					continue
				}
				shown[e.Key()] = true
				slot.Entries = append(slot.Entries, e)
			}
		}
		slots = append(slots, slot)
	}
	return slots
}
