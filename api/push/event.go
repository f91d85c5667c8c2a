package push

// EventChannel returns the redis pub/sub channel carrying one run's events.
func EventChannel(runID string) string {
	return "run:events:" + runID
}

// RunEvent is the wire format pushed to subscribers of a run.
type RunEvent struct {
	Status   string        `json:"status"`
	Metadata EventMetadata `json:"metadata"`
}

type EventMetadata struct {
	Progress    int    `json:"progress"`
	CurrentStep string `json:"current_step"`
	Error       string `json:"error,omitempty"`
}

// Terminal reports whether the event ends the run's stream.
func (e RunEvent) Terminal() bool {
	switch e.Status {
	case "completed", "failed", "cancelled":
		return true
	default:
		return false
	}
}
