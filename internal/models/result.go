package models

import (
	"time"

	"github.com/customeros/mailsync/internal/enum"
)

type FailedRow struct {
	Values Row    `json:"values"`
	Reason string `json:"reason"`
}

// UpsertResult is the outcome of synchronizing one consolidated table.
// Condition is set when nothing could be written at all.
type UpsertResult struct {
	Table      string              `json:"table"`
	Inserted   int                 `json:"inserted"`
	Updated    int                 `json:"updated"`
	FailedRows []FailedRow         `json:"failedRows,omitempty"`
	Condition  enum.TableCondition `json:"condition,omitempty"`
	Detail     string              `json:"detail,omitempty"`
}

// Failed reports whether the table belongs in the notification's failed
// table list.
func (r *UpsertResult) Failed() bool {
	return r.Condition != enum.TableConditionNone || len(r.FailedRows) > 0
}

// FileFailure records a stored file that could not be parsed.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunSummary is what the orchestrator hands to the notifier and persists.
type RunSummary struct {
	RunID           string         `json:"runId"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
	Mode            enum.SyncMode  `json:"mode"`
	ItemsConsidered int            `json:"itemsConsidered"`
	ItemsSkipped    int            `json:"itemsSkipped"`
	ItemsFailed     int            `json:"itemsFailed"`
	FilesStored     int            `json:"filesStored"`
	FilesParsed     int            `json:"filesParsed"`
	FilesFailed     []FileFailure  `json:"filesFailed,omitempty"`
	Inserted        int            `json:"inserted"`
	Updated         int            `json:"updated"`
	FailedRowCount  int            `json:"failedRowCount"`
	FailedTables    []string       `json:"failedTables"`
	Tables          []UpsertResult `json:"tables"`
	Watermark       *time.Time     `json:"watermark,omitempty"`
}

// AddResult folds one table result into the run totals.
func (s *RunSummary) AddResult(r *UpsertResult) {
	s.Tables = append(s.Tables, *r)
	s.Inserted += r.Inserted
	s.Updated += r.Updated
	s.FailedRowCount += len(r.FailedRows)
	if r.Failed() {
		s.FailedTables = append(s.FailedTables, r.Table)
	}
}
