package model

import "time"

// RunKind identifies which phase produced a run record.
type RunKind string

const (
	RunKindScan        RunKind = "scan"
	RunKindUnsubscribe RunKind = "unsubscribe"
)

// Run is one recorded execution of the scan or unsubscribe phase.
type Run struct {
	// ID is the internal unique identifier for this run.
	ID string `db:"id"`

	// Kind identifies the phase (use RunKind* constants).
	Kind RunKind `db:"kind"`

	// Mailbox is the scanned account address.
	Mailbox string `db:"mailbox"`

	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`

	// Scanned and Skipped count messages for scan runs, rows for
	// unsubscribe runs.
	Scanned int `db:"scanned"`
	Skipped int `db:"skipped"`

	// Domains is the number of reportable domains (scan) or processed
	// domains (unsubscribe).
	Domains int `db:"domains"`

	// ReportPath is the CSV file written or rewritten by the run.
	ReportPath string `db:"report_path"`
}

// Outcome is the recorded result of one unsubscribe attempt row.
type Outcome struct {
	RunID       string    `db:"run_id"`
	Domain      string    `db:"domain"`
	Status      string    `db:"status"`
	Method      string    `db:"method"`
	Reason      string    `db:"reason"`
	AttemptedAt time.Time `db:"attempted_at"`
}

// Unsubscribe outcome status values written to the report's Status column.
const (
	StatusSkipped          = "Skipped"
	StatusAlreadyProcessed = "Skipped (already processed)"
)

// Unsubscribe method labels used in success statuses.
const (
	MethodStoredURL    = "stored HTTP URL"
	MethodStoredMailto = "stored mailto"
	MethodHeaderURL    = "header HTTP URL"
	MethodHeaderMailto = "header mailto"
)

// SuccessStatus formats the Status column value for a successful attempt.
func SuccessStatus(method string) string {
	return "Success (" + method + ")"
}

// FailedStatus formats the Status column value for an exhausted attempt.
func FailedStatus(reason string) string {
	if reason == "" {
		reason = "all methods failed"
	}
	return "Failed: " + reason
}
