package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PipelinePhase names one stage of the content pipeline.
type PipelinePhase string

const (
	PhaseIngest     PipelinePhase = "ingest"
	PhaseClassify   PipelinePhase = "classify"
	PhaseScore      PipelinePhase = "score"
	PhaseDraft      PipelinePhase = "draft"
	PhaseFactCheck  PipelinePhase = "factcheck"
	PhaseRoute      PipelinePhase = "route"
	PhaseModerate   PipelinePhase = "moderate"
	PhaseThreadScan PipelinePhase = "thread_scan"
)

// RunStatus of one phase batch.
type RunStatus string

const (
	RunStarted   RunStatus = "started"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// WorkflowRun is the observability ledger row for one phase batch.
// Collection: workflow_runs
type WorkflowRun struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID  string             `bson:"run_id" json:"run_id"`
	Phase  PipelinePhase      `bson:"phase" json:"phase"`
	Status RunStatus          `bson:"status" json:"status"`

	ItemsProcessed int        `bson:"items_processed" json:"items_processed"`
	StartedAt      time.Time  `bson:"started_at" json:"started_at"`
	CompletedAt    *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	ErrorMessage   string     `bson:"error_message,omitempty" json:"error_message,omitempty"`
}
