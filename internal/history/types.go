package history

import "time"

const (
	// DefaultLimit is used when ?limit is absent or invalid.
	DefaultLimit = 20
	// MaxLimit caps ?limit.
	MaxLimit = 100
)

// Source is a cited document as recorded in the history.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Entry records one search request and its outcome.
type Entry struct {
	ID                 string    `json:"id"`
	UserIdentity       string    `json:"user_identity"`
	ClusterID          string    `json:"cluster_id,omitempty"`
	Query              string    `json:"query"`
	DoctorInstructions string    `json:"doctor_instructions,omitempty"`
	Success            bool      `json:"success"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	Summary            string    `json:"summary,omitempty"`
	Sources            []Source  `json:"sources"`
	DurationMS         int64     `json:"duration_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// ListResponse is the GET /api/search/history body.
type ListResponse struct {
	Success bool    `json:"success"`
	Count   int     `json:"count"`
	History []Entry `json:"history"`
}
