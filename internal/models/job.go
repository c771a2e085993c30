package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobTypeBulkRename = "bulk-rename"

	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	Type         string          `json:"type"`
	ConfigJSON   json.RawMessage `json:"config"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

// WebSocket message types
const (
	WSTypePresence     = "presence"
	WSTypeTimer        = "timer"
	WSTypeJobCompleted = "job_completed"
	WSTypeJobFailed    = "job_failed"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TimerEvent struct {
	State          string `json:"state"`
	ElapsedSeconds int64  `json:"elapsed_seconds"`
	SessionID      string `json:"session_id,omitempty"`
}

type JobEvent struct {
	JobID        string `json:"job_id"`
	Type         string `json:"type"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Reason    string            `json:"reason,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
