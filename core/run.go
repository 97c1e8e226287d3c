package core

import "time"

// RunStatus is the overall status of an agent run.
type RunStatus string

const (
	StatusIdle      RunStatus = "idle"
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusStopping  RunStatus = "stopping"
	StatusStopped   RunStatus = "stopped"
	StatusCompleted RunStatus = "completed"
)

// IsFinal reports whether the run has ended.
func (s RunStatus) IsFinal() bool {
	return s == StatusStopped || s == StatusCompleted
}

// Metadata carries liveness and accounting data for a run.
type Metadata struct {
	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
	Iteration  int       `json:"iteration"`
	Cost       float64   `json:"cost"`
}
