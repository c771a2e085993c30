package models

import "time"

type PomodoroLogEntry struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	Duration  *int   `json:"duration"` // minutes, nil while the session is running
	Subject   string `json:"subject"`
	Topic     string `json:"topic"`
	Book      string `json:"book"`
	Content   string `json:"content"`
}

func (e PomodoroLogEntry) InProgress() bool {
	return e.Duration == nil
}

// LogDocument is the full studyPomodoroLogs document of one user, keyed by date.
type LogDocument map[string][]PomodoroLogEntry

type ShareScope string

const (
	ScopePublic ShareScope = "すべて公開"
	ScopeGrade  ShareScope = "学年のみ"
	ScopeClass  ShareScope = "組のみ"
	ScopeMates  ShareScope = "連れ勉仲間のみ"
)

func (s ShareScope) Valid() bool {
	switch s {
	case ScopePublic, ScopeGrade, ScopeClass, ScopeMates:
		return true
	}
	return false
}

// ActiveSession is the presence announcement of a user who is studying right now.
// Profile fields are a snapshot taken when the session started.
type ActiveSession struct {
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Grade           string     `json:"grade"`
	Class           string     `json:"class"`
	ShareScope      ShareScope `json:"shareScope"`
	TurebenRequests []string   `json:"turebenRequests"`
	HiddenRequests  []string   `json:"hiddenRequests"`
	HiddenMates     []string   `json:"hiddenMates"`
	Subject         string     `json:"subject"`
	Topic           string     `json:"topic"`
	Book            string     `json:"book"`
	Content         string     `json:"content"`
	StartTime       string     `json:"startTime"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// FinishRequest carries the manual minute count when the measured one was
// rejected. Cancel drops the session instead.
type FinishRequest struct {
	ManualMinutes *int `json:"manual_minutes"`
	Cancel        bool `json:"cancel"`
}
