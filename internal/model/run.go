package model

import "time"

// RunStatus represents the state of a patrol run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Stage is a Page Worker state. Fetching through Persisting are the
// ordered pipeline states; Done and Failed are terminal.
type Stage string

const (
	StageFetching    Stage = "fetching"
	StageExtracting  Stage = "extracting"
	StageReconciling Stage = "reconciling"
	StagePersisting  Stage = "persisting"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// PatrolRun is the persisted record of one batch.
type PatrolRun struct {
	ID             string     `json:"id"`
	Status         RunStatus  `json:"status"`
	Mode           string     `json:"mode,omitempty"`
	Total          int        `json:"total"`
	Succeeded      int        `json:"succeeded"`
	Failed         int        `json:"failed"`
	PricesFound    int        `json:"prices_found"`
	Repaired       int        `json:"repaired"`
	AICalls        int        `json:"ai_calls"`
	AICostUSD      float64    `json:"ai_cost_usd"`
	BreakerTripped bool       `json:"breaker_tripped"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// FailureRecord quarantines one terminally failed WorkItem for later
// inspection. Failures never abort the batch. Class separates transient
// failures (worth revisiting next run) from permanent ones.
type FailureRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	SourceID  string    `json:"source_id"`
	URL       string    `json:"url"`
	Stage     Stage     `json:"stage"`
	Reason    string    `json:"reason"`
	Class     string    `json:"class"`
	CreatedAt time.Time `json:"created_at"`
}
