package models

import "sort"

type StudyPlanEntry struct {
	Date    string `json:"date"`           // YYYY-MM-DD
	Hour    string `json:"hour,omitempty"` // bucket the entry is stored under
	Start   string `json:"start"`          // HH:MM
	End     string `json:"end"`            // HH:MM, "24:00" allowed
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Book    string `json:"book"`
	Content string `json:"content"`
}

// Key identifies an entry for display deduplication.
func (e StudyPlanEntry) Key() string {
	return e.Date + "-" + e.Start + "-" + e.End + "-" + e.Subject + "-" + e.Topic
}

// DayPlans maps an hour bucket ("00".."23") to the entries starting in that hour.
type DayPlans map[string][]StudyPlanEntry

// Flatten returns every entry of the day, hour buckets in ascending order and
// storage order inside a bucket.
func (d DayPlans) Flatten() []StudyPlanEntry {
	hours := make([]string, 0, len(d))
	for h := range d {
		hours = append(hours, h)
	}
	sort.Strings(hours)

	var out []StudyPlanEntry
	for _, h := range hours {
		out = append(out, d[h]...)
	}
	return out
}

// PlanDocument is the full studyPlans document of one user, keyed by date.
type PlanDocument map[string]DayPlans

type SavePlanRequest struct {
	Start   string `json:"start"`
	End     string `json:"end"`
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
	Book    string `json:"book"`
	Content string `json:"content"`
}

// EntryRef addresses a stored entry by hour bucket and position.
type EntryRef struct {
	Hour  string `json:"hour"`
	Index int    `json:"index"`
}

// PlanHistory lists the books used so far, by subject and topic.
type PlanHistory map[string]map[string][]string
