package dto

import "time"

// SyncRunCompleted is published once per finished run.
type SyncRunCompleted struct {
	RunID           string     `json:"runId"`
	Mode            string     `json:"mode"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      time.Time  `json:"finishedAt"`
	ItemsConsidered int        `json:"itemsConsidered"`
	FilesParsed     int        `json:"filesParsed"`
	FilesFailed     int        `json:"filesFailed"`
	Inserted        int        `json:"inserted"`
	Updated         int        `json:"updated"`
	FailedRowCount  int        `json:"failedRowCount"`
	FailedTables    []string   `json:"failedTables"`
	Watermark       *time.Time `json:"watermark,omitempty"`
}
