package client

import "time"

// DirRequest is the body of POST /watches and POST /dirs.
type DirRequest struct {
	Dir    string `json:"dir"`
	Launch bool   `json:"launch,omitempty"`
}

// Watch is one live watch reported by the daemon.
type Watch struct {
	Dir       string    `json:"dir"`
	PID       int       `json:"pid"`
	Target    string    `json:"target"`
	StartedAt time.Time `json:"started_at"`
}

// Outcome is the result of relaunching one pending directory.
type Outcome struct {
	Dir     string `json:"dir"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AddResult is the response of POST /dirs.
type AddResult struct {
	Added   bool   `json:"added"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type OKResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
