package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RuleType selects the evaluation strategy for a scheduling rule.
type RuleType string

const (
	RuleTypeTimeConstraint   RuleType = "TIME_CONSTRAINT"
	RuleTypeCapacityLimit    RuleType = "CAPACITY_LIMIT"
	RuleTypeAdvanceBooking   RuleType = "ADVANCE_BOOKING"
	RuleTypeRecurringPattern RuleType = "RECURRING_PATTERN"
	RuleTypeCustom           RuleType = "CUSTOM"
)

// Valid reports whether t is one of the supported rule types.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeTimeConstraint, RuleTypeCapacityLimit, RuleTypeAdvanceBooking,
		RuleTypeRecurringPattern, RuleTypeCustom:
		return true
	}
	return false
}

// RuleActionType classifies what a violated rule does to the candidate.
type RuleActionType string

const (
	RuleActionAllow          RuleActionType = "ALLOW"
	RuleActionDeny           RuleActionType = "DENY"
	RuleActionWarn           RuleActionType = "WARN"
	RuleActionAutoReschedule RuleActionType = "AUTO_RESCHEDULE"
)

// Valid reports whether a is a supported action type.
func (a RuleActionType) Valid() bool {
	switch a {
	case RuleActionAllow, RuleActionDeny, RuleActionWarn, RuleActionAutoReschedule:
		return true
	}
	return false
}

// RuleConditions holds the per-type condition payload. Only the fields
// belonging to the rule's declared type may be set; the rule service enforces
// this on write. The struct is stored as a JSON text column.
type RuleConditions struct {
	// TIME_CONSTRAINT
	DaysOfWeek    []int    `json:"daysOfWeek,omitempty"`
	StartTime     string   `json:"startTime,omitempty"`
	EndTime       string   `json:"endTime,omitempty"`
	SpecificDates []string `json:"specificDates,omitempty"`

	// CAPACITY_LIMIT
	MaxSessionsPerDay  *int `json:"maxSessionsPerDay,omitempty"`
	MaxSessionsPerWeek *int `json:"maxSessionsPerWeek,omitempty"`

	// ADVANCE_BOOKING (calendar days)
	MinAdvanceBooking *int `json:"minAdvanceBooking,omitempty"`
	MaxAdvanceBooking *int `json:"maxAdvanceBooking,omitempty"`

	// RECURRING_PATTERN
	RecurringType  string   `json:"recurringType,omitempty"`
	Interval       int      `json:"interval,omitempty"`
	ExceptionDates []string `json:"exceptionDates,omitempty"`

	// CUSTOM
	CustomLogic string `json:"customLogic,omitempty"`
}

// AutoRescheduleOptions tunes the AUTO_RESCHEDULE action.
type AutoRescheduleOptions struct {
	PreferredTimes []string `json:"preferredTimes,omitempty"`
	MaxShiftDays   int      `json:"maxShiftDays,omitempty"`
}

// RuleActions determines how a violation is classified downstream.
type RuleActions struct {
	Type                  RuleActionType         `json:"type"`
	Message               string                 `json:"message,omitempty"`
	AutoRescheduleOptions *AutoRescheduleOptions `json:"autoRescheduleOptions,omitempty"`
}

// RuleScope restricts which candidate sessions a rule applies to. Scope
// membership is a logical OR across dimensions.
type RuleScope struct {
	TherapistIDs []string `json:"therapistIds,omitempty"`
	ServiceIDs   []string `json:"serviceIds,omitempty"`
	PatientIDs   []string `json:"patientIds,omitempty"`
	ApplyToAll   bool     `json:"applyToAll"`
}

// Matches reports whether the scope covers the given candidate identifiers.
func (s RuleScope) Matches(therapistID, serviceID, patientID string) bool {
	if s.ApplyToAll {
		return true
	}
	if containsString(s.TherapistIDs, therapistID) {
		return true
	}
	if containsString(s.ServiceIDs, serviceID) {
		return true
	}
	if patientID != "" && containsString(s.PatientIDs, patientID) {
		return true
	}
	return false
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

// SchedulingRule is a persisted scheduling constraint.
type SchedulingRule struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	Type        RuleType       `db:"type" json:"type"`
	Conditions  RuleConditions `db:"conditions" json:"conditions"`
	Actions     RuleActions    `db:"actions" json:"actions"`
	Scope       RuleScope      `db:"scope" json:"scope"`
	Priority    int            `db:"priority" json:"priority"`
	IsActive    bool           `db:"is_active" json:"is_active"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// RuleFilter describes query params for listing rules.
type RuleFilter struct {
	TherapistID string
	ServiceID   string
	Type        string
	IsActive    *bool
	Page        int
	PageSize    int
}

// Scan implements sql.Scanner so the JSON text column loads into the struct.
// Missing and empty values decode as the zero value, never as an error.
func (c *RuleConditions) Scan(src interface{}) error { return scanJSON(src, c) }

// Value implements driver.Valuer.
func (c RuleConditions) Value() (driver.Value, error) { return json.Marshal(c) }

// Scan implements sql.Scanner.
func (a *RuleActions) Scan(src interface{}) error { return scanJSON(src, a) }

// Value implements driver.Valuer.
func (a RuleActions) Value() (driver.Value, error) { return json.Marshal(a) }

// Scan implements sql.Scanner.
func (s *RuleScope) Scan(src interface{}) error { return scanJSON(src, s) }

// Value implements driver.Valuer.
func (s RuleScope) Value() (driver.Value, error) { return json.Marshal(s) }

func scanJSON(src, dest interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}
