package dto

// SetModeRequest changes the reconcile mode
type SetModeRequest struct {
	Mode string `json:"mode" binding:"required,oneof=observe safe full OBSERVE SAFE FULL"`
}

// StartSchedulerRequest starts the scheduler. A zero interval keeps the configured one.
type StartSchedulerRequest struct {
	IntervalMinutes int `json:"interval_minutes" binding:"omitempty,min=1,max=1440"`
}

// ModeResponse reports the active mode
type ModeResponse struct {
	Mode string `json:"mode"`
}

// SchedulerStateResponse reports whether the scheduler is ticking
type SchedulerStateResponse struct {
	Started         bool  `json:"started"`
	IntervalSeconds int64 `json:"interval_seconds"`
}
