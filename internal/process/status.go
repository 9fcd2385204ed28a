package process

import "time"

// Status describes a compiler process started by the launcher.
type Status struct {
	PID       int       `json:"pid"`
	SourceDir string    `json:"source_dir"`
	Command   []string  `json:"command"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	ExitErr   string    `json:"exit_error,omitempty"`
}

// Result is what a launch reports once the start window has passed.
// PID is zero when no live process came out of the launch.
type Result struct {
	PID      int
	ExitCode int
	Killed   bool
}
