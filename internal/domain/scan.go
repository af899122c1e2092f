package domain

import "time"

// DiagnosisStatus enumerates the lifecycle of a scan record.
type DiagnosisStatus string

const (
	StatusPending   DiagnosisStatus = "pending"
	StatusCompleted DiagnosisStatus = "completed"
	StatusFailed    DiagnosisStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DiagnosisStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed from s.
func (s DiagnosisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition allows only pending -> completed and pending -> failed.
func CanTransition(from, to DiagnosisStatus) bool {
	return from == StatusPending && to.Terminal()
}

// PendingScan is the unit of work returned by the record store.
type PendingScan struct {
	ScanID   string
	FilePath string
}

// ScanRecord is the persisted row describing one uploaded image.
type ScanRecord struct {
	ScanID          string
	FilePath        string
	Status          DiagnosisStatus
	DiagnosisType   *string
	ConfidenceScore *float64
	CreatedAt       time.Time
}

// Apply returns a copy of the record with the outcome fields written.
func (r ScanRecord) Apply(o Outcome) ScanRecord {
	r.Status = o.Status()
	if d, ok := o.Diagnosis(); ok {
		label := d.Label
		score := d.Confidence
		r.DiagnosisType = &label
		r.ConfidenceScore = &score
	}
	return r
}

// Outcome is the closed set of fields this worker may write to a scan record.
// The zero value is invalid; build one with CompletedOutcome or FailedOutcome.
type Outcome struct {
	status    DiagnosisStatus
	diagnosis *Diagnosis
}

// CompletedOutcome carries the diagnosis type and confidence score together.
func CompletedOutcome(d Diagnosis) Outcome {
	return Outcome{status: StatusCompleted, diagnosis: &d}
}

// FailedOutcome writes only the failed status.
func FailedOutcome() Outcome {
	return Outcome{status: StatusFailed}
}

// Status is the terminal status written by the outcome.
func (o Outcome) Status() DiagnosisStatus {
	return o.status
}

// Diagnosis returns the classification result for completed outcomes.
func (o Outcome) Diagnosis() (Diagnosis, bool) {
	if o.diagnosis == nil {
		return Diagnosis{}, false
	}
	return *o.diagnosis, true
}

// Valid reports whether the outcome was built by one of the constructors.
func (o Outcome) Valid() bool {
	switch o.status {
	case StatusCompleted:
		return o.diagnosis != nil
	case StatusFailed:
		return o.diagnosis == nil
	default:
		return false
	}
}

// DiagnosisEvent is emitted after an outcome has been persisted.
type DiagnosisEvent struct {
	ScanID          string          `json:"scan_id"`
	Status          DiagnosisStatus `json:"diagnosis_status"`
	DiagnosisType   string          `json:"diagnosis_type,omitempty"`
	ConfidenceScore *float64        `json:"confidence_score,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// NewDiagnosisEvent describes the outcome written for scanID.
func NewDiagnosisEvent(scanID string, o Outcome, at time.Time) DiagnosisEvent {
	ev := DiagnosisEvent{
		ScanID:     scanID,
		Status:     o.Status(),
		OccurredAt: at.UTC(),
	}
	if d, ok := o.Diagnosis(); ok {
		score := d.Confidence
		ev.DiagnosisType = d.Label
		ev.ConfidenceScore = &score
	}
	return ev
}
