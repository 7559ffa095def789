package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/uni-timetable-api/internal/strategy"
)

// RunStatus mirrors the orchestrator's lifecycle states in storage.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSucceeded RunStatus = "SUCCEEDED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCancelled
}

// OptimizationRun is the persisted record of one strategy execution.
type OptimizationRun struct {
	ID            string      `db:"id" json:"id"`
	SemesterID    string      `db:"semester_id" json:"semester_id"`
	Algorithm     string      `db:"algorithm" json:"algorithm"`
	Status        RunStatus   `db:"status" json:"status"`
	Params        RunParams   `db:"params" json:"params"`
	Metrics       *RunMetrics `db:"metrics" json:"metrics,omitempty"`
	Result        *RunResult  `db:"result" json:"result,omitempty"`
	Incomplete    bool        `db:"incomplete" json:"incomplete"`
	DroppedEvents int         `db:"dropped_events" json:"dropped_events"`
	ErrorMessage  *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedBy     string      `db:"created_by" json:"created_by"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	StartedAt     *time.Time  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
}

// RunParams stores the strategy tunables persisted as JSONB.
type RunParams struct {
	strategy.Params
}

// Value marshals params to JSON for persistence.
func (p RunParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p.Params)
	if err != nil {
		return nil, fmt.Errorf("marshal run params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RunParams) Scan(value interface{}) error {
	if value == nil {
		*p = RunParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RunParams", value)
	}
	if len(data) == 0 {
		*p = RunParams{}
		return nil
	}
	if err := json.Unmarshal(data, &p.Params); err != nil {
		return fmt.Errorf("unmarshal run params: %w", err)
	}
	return nil
}

// RunMetrics is the evaluation snapshot persisted alongside a terminal run.
type RunMetrics struct {
	HardViolations        int     `json:"hard_violations"`
	RoomConflicts         int     `json:"room_conflicts"`
	TeacherConflicts      int     `json:"teacher_conflicts"`
	StudentConflicts      int     `json:"student_conflicts"`
	CapacityViolations    int     `json:"capacity_violations"`
	DistributionConflicts int     `json:"distribution_conflicts"`
	Unassigned            int     `json:"unassigned"`
	SoftScore             float64 `json:"soft_score"`
	Iterations            int     `json:"iterations"`
}

// Value marshals metrics to JSON for persistence.
func (m RunMetrics) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal run metrics: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the metrics struct.
func (m *RunMetrics) Scan(value interface{}) error {
	if value == nil {
		*m = RunMetrics{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RunMetrics", value)
	}
	if len(data) == 0 {
		*m = RunMetrics{}
		return nil
	}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("unmarshal run metrics: %w", err)
	}
	return nil
}

// RunAssignment is one placed activity in a persisted run result.
type RunAssignment struct {
	ActivityID  string `json:"activity_id"`
	Subject     string `json:"subject"`
	Day         int    `json:"day"`
	StartPeriod int    `json:"start_period"`
	Duration    int    `json:"duration"`
	SpaceID     string `json:"space_id"`
}

// RunResult is the best candidate persisted with a terminal run, JSONB.
type RunResult struct {
	Assignments []RunAssignment `json:"assignments"`
	Unassigned  []string        `json:"unassigned,omitempty"`
}

// Value marshals the result to JSON for persistence.
func (r RunResult) Value() (driver.Value, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal run result: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the result struct.
func (r *RunResult) Scan(value interface{}) error {
	if value == nil {
		*r = RunResult{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RunResult", value)
	}
	if len(data) == 0 {
		*r = RunResult{}
		return nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("unmarshal run result: %w", err)
	}
	return nil
}

// RunFilter captures filtering criteria for listing optimization runs.
type RunFilter struct {
	SemesterID string
	Algorithm  string
	Status     *RunStatus
	Page       int
	PageSize   int
}
