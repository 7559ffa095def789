package dto

import (
	"time"

	"github.com/noah-isme/uni-timetable-api/internal/models"
)

// StartRunRequest launches optimization runs for a semester. An empty
// algorithm list starts one run per supported algorithm.
type StartRunRequest struct {
	SemesterID string             `json:"semesterId" validate:"required"`
	Algorithms []string           `json:"algorithms" validate:"omitempty,min=1,dive,oneof=genetic constraint reinforcement"`
	Params     OptimizationParams `json:"params"`
}

// OptimizationParams exposes the strategy tunables over the API. Zero
// values fall back to per-algorithm defaults.
type OptimizationParams struct {
	Seed             int64   `json:"seed"`
	WallClockSeconds int     `json:"wallClockSeconds" validate:"omitempty,min=1,max=3600"`
	PopulationSize   int     `json:"populationSize" validate:"omitempty,min=2,max=500"`
	Generations      int     `json:"generations" validate:"omitempty,min=1,max=5000"`
	CrossoverRate    float64 `json:"crossoverRate" validate:"omitempty,gt=0,lte=1"`
	MutationRate     float64 `json:"mutationRate" validate:"omitempty,gt=0,lte=1"`
	Crossover        string  `json:"crossover" validate:"omitempty,oneof=uniform one_point"`
	MaxIterations    int     `json:"maxIterations" validate:"omitempty,min=1,max=100000"`
	RepairMode       string  `json:"repairMode" validate:"omitempty,oneof=annealing tabu"`
	Episodes         int     `json:"episodes" validate:"omitempty,min=1,max=100000"`
	Epsilon          float64 `json:"epsilon" validate:"omitempty,gt=0,lte=1"`
	Alpha            float64 `json:"alpha" validate:"omitempty,gt=0,lte=1"`
	Gamma            float64 `json:"gamma" validate:"omitempty,gt=0,lte=1"`
	Policy           string  `json:"policy" validate:"omitempty,oneof=tabular linear"`
}

// RunResponse summarises a run's state for API consumers.
type RunResponse struct {
	ID            string             `json:"id"`
	SemesterID    string             `json:"semesterId"`
	Algorithm     string             `json:"algorithm"`
	Status        models.RunStatus   `json:"status"`
	Incomplete    bool               `json:"incomplete"`
	DroppedEvents int                `json:"droppedEvents"`
	Metrics       *models.RunMetrics `json:"metrics,omitempty"`
	Error         *string            `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	FinishedAt    *time.Time         `json:"finishedAt,omitempty"`
}

// StartRunResponse is returned after launching a batch of runs.
type StartRunResponse struct {
	Runs []RunResponse `json:"runs"`
}

// RunListQuery filters the run listing.
type RunListQuery struct {
	SemesterID string `form:"semesterId" json:"semesterId"`
	Algorithm  string `form:"algorithm" json:"algorithm" validate:"omitempty,oneof=genetic constraint reinforcement"`
	Status     string `form:"status" json:"status" validate:"omitempty,oneof=PENDING RUNNING SUCCEEDED FAILED CANCELLED"`
	Page       int    `form:"page" json:"page" validate:"omitempty,min=1"`
	PageSize   int    `form:"pageSize" json:"pageSize" validate:"omitempty,min=1,max=100"`
}

// ProgressEventResponse is one server-sent progress entry.
type ProgressEventResponse struct {
	RunID     string             `json:"runId"`
	Sequence  int                `json:"sequence"`
	Timestamp time.Time          `json:"timestamp"`
	Algorithm string             `json:"algorithm"`
	Stage     string             `json:"stage"`
	Level     string             `json:"level"`
	Message   string             `json:"message"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// RunResultResponse returns a terminal run's best candidate.
type RunResultResponse struct {
	RunID       string                 `json:"runId"`
	Algorithm   string                 `json:"algorithm"`
	Status      models.RunStatus       `json:"status"`
	Incomplete  bool                   `json:"incomplete"`
	Metrics     models.RunMetrics      `json:"metrics"`
	Assignments []models.RunAssignment `json:"assignments"`
	Unassigned  []string               `json:"unassigned,omitempty"`
}

// LeaderboardEntry ranks one terminal run for a semester.
type LeaderboardEntry struct {
	Rank       int               `json:"rank"`
	RunID      string            `json:"runId"`
	Algorithm  string            `json:"algorithm"`
	Incomplete bool              `json:"incomplete"`
	Metrics    models.RunMetrics `json:"metrics"`
	Selected   bool              `json:"selected"`
}

// LeaderboardResponse is the ranked comparison across a semester's runs.
type LeaderboardResponse struct {
	SemesterID string             `json:"semesterId"`
	Entries    []LeaderboardEntry `json:"entries"`
}

// SelectAlgorithmRequest marks a run's algorithm as the semester's choice.
type SelectAlgorithmRequest struct {
	SemesterID string `json:"semesterId" validate:"required"`
	RunID      string `json:"runId" validate:"required"`
}

// SelectionResponse echoes the recorded selection.
type SelectionResponse struct {
	SemesterID string    `json:"semesterId"`
	RunID      string    `json:"runId"`
	Algorithm  string    `json:"algorithm"`
	SelectedBy string    `json:"selectedBy"`
	SelectedAt time.Time `json:"selectedAt"`
}

// PublishRequest publishes the selected run's timetable for a semester.
type PublishRequest struct {
	SemesterID string `json:"semesterId" validate:"required"`
}

// PublishResponse describes the resulting publication.
type PublishResponse struct {
	ScheduleID  string    `json:"scheduleId"`
	SemesterID  string    `json:"semesterId"`
	RunID       string    `json:"runId"`
	Algorithm   string    `json:"algorithm"`
	Assignments int       `json:"assignments"`
	PublishedAt time.Time `json:"publishedAt"`
}

// PublishedScheduleResponse returns the current publication with its rows.
type PublishedScheduleResponse struct {
	Schedule    models.PublishedSchedule     `json:"schedule"`
	Assignments []models.PublishedAssignment `json:"assignments"`
}
