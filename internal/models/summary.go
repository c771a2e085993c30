package models

const (
	WindowYesterday = "yesterday"
	WindowWeek      = "week"
	WindowMonth     = "month"
)

type SummaryPoint struct {
	TotalMinutes int     `json:"totalMinutes"`
	Score        float64 `json:"score"`
}

// WindowSummary is one rollup document, keyed by user email.
type WindowSummary map[string]SummaryPoint

type TopicTotal struct {
	Topic   string `json:"topic"`
	Subject string `json:"subject"`
	Minutes int    `json:"minutes"`
}

type DailyBreakdown struct {
	Date         string       `json:"date"`
	Topics       []TopicTotal `json:"topics"`
	TotalMinutes int          `json:"total_minutes"`
}

type DayTotal struct {
	Date    string `json:"date"`
	Minutes int    `json:"minutes"`
}

type DaySeries struct {
	Date   string         `json:"date"`
	Topics map[string]int `json:"topics"`
}

type StackedSeries struct {
	Days         []DaySeries       `json:"days"`
	TopicSubject map[string]string `json:"topic_subject"`
}
