package models

import "time"

// SessionStatus tracks the lifecycle of a therapy session.
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "SCHEDULED"
	SessionStatusConfirmed  SessionStatus = "CONFIRMED"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
	SessionStatusNoShow     SessionStatus = "NO_SHOW"
)

// ActiveSessionStatuses are the statuses that occupy a therapist's calendar.
// Only these participate in capacity counts and conflict detection.
var ActiveSessionStatuses = []SessionStatus{
	SessionStatusScheduled,
	SessionStatusConfirmed,
	SessionStatusInProgress,
}

// TherapySession represents a booked session in the sessions table.
type TherapySession struct {
	ID            string        `db:"id" json:"id"`
	PatientID     string        `db:"patient_id" json:"patient_id"`
	TherapistID   string        `db:"therapist_id" json:"therapist_id"`
	ServiceID     string        `db:"service_id" json:"service_id"`
	ScheduledDate time.Time     `db:"scheduled_date" json:"scheduled_date"`
	ScheduledTime string        `db:"scheduled_time" json:"scheduled_time"`
	Duration      int           `db:"duration" json:"duration"`
	Status        SessionStatus `db:"status" json:"status"`
	Notes         *string       `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	TherapistID string
	PatientID   string
	ServiceID   string
	Status      string
	DateFrom    *time.Time
	DateTo      *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// CandidateSession is the transient input to scheduling validation. It is
// never persisted; SessionID is set when re-validating an existing booking.
type CandidateSession struct {
	TherapistID   string
	ServiceID     string
	PatientID     string
	SessionID     string
	ScheduledDate time.Time
	ScheduledTime string
	Duration      int
}

// SessionSnapshot is the slice of a session the conflict detector needs,
// plus display metadata for the schedule audit view.
type SessionSnapshot struct {
	ID            string        `db:"id" json:"id"`
	ScheduledTime string        `db:"scheduled_time" json:"scheduled_time"`
	Duration      int           `db:"duration" json:"duration"`
	Status        SessionStatus `db:"status" json:"status"`
	PatientName   string        `db:"patient_name" json:"patient_name"`
	ServiceName   string        `db:"service_name" json:"service_name"`
}

// ConflictType distinguishes hard overlaps from thin buffers.
type ConflictType string

const (
	ConflictTimeOverlap        ConflictType = "TIME_OVERLAP"
	ConflictInsufficientBuffer ConflictType = "INSUFFICIENT_BUFFER"
)

// ScheduleConflict reports a problem between two consecutive sessions on a
// therapist's day. Both conflict kinds can be emitted for the same pair.
type ScheduleConflict struct {
	Type           ConflictType       `json:"type"`
	Sessions       [2]SessionSnapshot `json:"sessions"`
	OverlapMinutes *int               `json:"overlap_minutes,omitempty"`
	BufferMinutes  *int               `json:"buffer_minutes,omitempty"`
	Message        string             `json:"message"`
}

// ConflictCounts totals one day's conflict scan.
type ConflictCounts struct {
	TotalSessions   int `json:"total_sessions"`
	TotalConflicts  int `json:"total_conflicts"`
	Overlaps        int `json:"overlaps"`
	BufferConflicts int `json:"buffer_conflicts"`
}

// SummarizeConflicts tallies a conflict scan by kind.
func SummarizeConflicts(sessions []SessionSnapshot, conflicts []ScheduleConflict) ConflictCounts {
	counts := ConflictCounts{
		TotalSessions:  len(sessions),
		TotalConflicts: len(conflicts),
	}
	for _, conflict := range conflicts {
		switch conflict.Type {
		case ConflictTimeOverlap:
			counts.Overlaps++
		case ConflictInsufficientBuffer:
			counts.BufferConflicts++
		}
	}
	return counts
}

// EvaluationResult is the outcome of checking one candidate against one rule.
type EvaluationResult struct {
	RuleID        string                 `json:"rule_id"`
	RuleName      string                 `json:"rule_name"`
	RuleType      RuleType               `json:"rule_type"`
	Violated      bool                   `json:"violated"`
	Message       string                 `json:"message"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Action        RuleActionType         `json:"action"`
	ActionMessage string                 `json:"action_message,omitempty"`
}

// ValidationCounts summarises an evaluation run.
type ValidationCounts struct {
	TotalRules int `json:"total_rules"`
	Violations int `json:"violations"`
	Warnings   int `json:"warnings"`
	Passed     int `json:"passed"`
}

// ValidationSummary aggregates all rule evaluations for one candidate.
// Valid is true iff no DENY-action rule violated; warnings never block.
type ValidationSummary struct {
	Valid             bool               `json:"valid"`
	Violations        []EvaluationResult `json:"violations"`
	Warnings          []EvaluationResult `json:"warnings"`
	ValidationResults []EvaluationResult `json:"validation_results"`
	Summary           ValidationCounts   `json:"summary"`
}
