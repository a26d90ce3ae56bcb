package model

import "time"

// Stream outcomes recorded in StreamLog.Status.
const (
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// StreamLog records one streaming call through the facade.
type StreamLog struct {
	ID       string `db:"id" json:"id"`
	Provider string `db:"provider" json:"provider"`
	Model    string `db:"model" json:"model"`
	Status   string `db:"status" json:"status"`

	Fragments    int `db:"fragments" json:"fragments"`
	Characters   int `db:"characters" json:"characters"`
	HistoryTurns int `db:"history_turns" json:"history_turns"`

	// FirstFragmentMs is the time to the first emitted fragment, 0 if none.
	FirstFragmentMs int64 `db:"first_fragment_ms" json:"first_fragment_ms"`
	DurationMs      int64 `db:"duration_ms" json:"duration_ms"`

	UpstreamStatus int    `db:"upstream_status" json:"upstream_status,omitempty"`
	ErrorMessage   string `db:"error_message" json:"error_message,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DailyStats aggregates stream logs per provider per day.
type DailyStats struct {
	Date           string  `db:"date" json:"date"`
	Provider       string  `db:"provider" json:"provider"`
	Streams        int     `db:"streams" json:"streams"`
	Failed         int     `db:"failed" json:"failed"`
	Canceled       int     `db:"canceled" json:"canceled"`
	Characters     int     `db:"characters" json:"characters"`
	AvgFirstByteMs float64 `db:"avg_first_fragment_ms" json:"avg_first_fragment_ms"`
}
