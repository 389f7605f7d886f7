package enum

import "strings"

type SyncMode string

const (
	SyncModeUpsert  SyncMode = "upsert"
	SyncModeReplace SyncMode = "replace"
)

func (m SyncMode) String() string {
	return string(m)
}

func (m SyncMode) IsValid() bool {
	return m == SyncModeUpsert || m == SyncModeReplace
}

func GetSyncMode(s string) SyncMode {
	return SyncMode(strings.ToLower(strings.TrimSpace(s)))
}

// TableCondition is a table level outcome that prevented any row from
// being written.
type TableCondition string

const (
	TableConditionNone              TableCondition = ""
	TableConditionNotFound          TableCondition = "table_not_found"
	TableConditionSchemaMismatch    TableCondition = "schema_mismatch"
	TableConditionIdentifierMissing TableCondition = "identifier_missing"
	TableConditionUnavailable       TableCondition = "table_unavailable"
)

func (c TableCondition) String() string {
	return string(c)
}

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

func (s RunStatus) String() string {
	return string(s)
}
