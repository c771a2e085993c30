package models

import (
	"time"
)

type Score struct {
	TestName string  `json:"testName"`
	Value    float64 `json:"value"`
}

type User struct {
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Grade           string     `json:"grade"`
	Class           string     `json:"class"`
	Number          string     `json:"number"`
	ShareScope      ShareScope `json:"shareScope"`
	Teacher         bool       `json:"teacher"`
	TurebenRequests []string   `json:"turebenRequests"`
	HiddenRequests  []string   `json:"hiddenRequests"`
	HiddenMates     []string   `json:"hiddenMates"`
	Scores          []Score    `json:"scores"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NeedsSetup reports whether the initial profile dialog has not been completed.
func (u User) NeedsSetup() bool {
	return u.Grade == "" && !u.Teacher
}

type ProfileRequest struct {
	Grade      string     `json:"grade"`
	Class      string     `json:"class"`
	Number     string     `json:"number"`
	ShareScope ShareScope `json:"shareScope"`
	Scores     []Score    `json:"scores,omitempty"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"id_token"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	NeedsSetup   bool   `json:"needs_setup,omitempty"`
}

type BulkRenameRequest struct {
	Topic    string `json:"topic"`
	NewTopic string `json:"new_topic"`
	Book     string `json:"book"`
	NewBook  string `json:"new_book"`
}
