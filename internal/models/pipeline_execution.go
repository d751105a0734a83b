package models

import (
	"gorm.io/gorm"
)

// PipelineExecutionStatus is the terminal/non-terminal state of a run.
type PipelineExecutionStatus string

const (
	PipelineExecutionStatusRunning   PipelineExecutionStatus = "running"
	PipelineExecutionStatusCompleted PipelineExecutionStatus = "completed"
	PipelineExecutionStatusFailed    PipelineExecutionStatus = "failed"
	PipelineExecutionStatusCancelled PipelineExecutionStatus = "cancelled"
)

// IsTerminal returns true for Completed, Failed, and Cancelled.
func (s PipelineExecutionStatus) IsTerminal() bool {
	return s == PipelineExecutionStatusCompleted || s == PipelineExecutionStatusFailed || s == PipelineExecutionStatusCancelled
}

// StageStatus is the per-stage execution state recorded in
// PipelineExecution.Stages.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageRecord tracks one stage's timing and outcome within an execution.
type StageRecord struct {
	Name        string      `json:"name"`
	Status      StageStatus `json:"status"`
	StartedAt   *Time       `json:"started_at,omitempty"`
	CompletedAt *Time       `json:"completed_at,omitempty"`
	DurationMs  int64       `json:"duration_ms,omitempty"`
	Error       string      `json:"error,omitempty"`
	ArtifactIDs []string    `json:"artifact_ids,omitempty"`
}

// PipelineExecution represents one run of the generation pipeline for a
// proxy: data-mapping through publish. At most one non-terminal execution
// may exist per proxy at any time (enforced by the orchestrator, see
// internal/pipeline/core).
type PipelineExecution struct {
	BaseModel

	// ProxyID is the proxy this execution generates output for.
	ProxyID ULID `gorm:"type:varchar(26);not null;index" json:"proxy_id"`

	// ExecutionPrefix namespaces this run's sandboxed artifact files
	// (internal/storage), distinct from the BaseModel ID so artifact paths
	// stay stable even if the ID encoding changes.
	ExecutionPrefix string `gorm:"not null;size:64;uniqueIndex" json:"execution_prefix"`

	// Status is the current lifecycle state.
	Status PipelineExecutionStatus `gorm:"not null;default:'running';size:20;index" json:"status"`

	// Stages is keyed by stage name, recording timing and outcome per stage.
	Stages map[string]StageRecord `gorm:"serializer:json" json:"stages"`

	// ChannelCount and ProgramCount are populated by the generation stage.
	ChannelCount int `gorm:"default:0" json:"channel_count"`
	ProgramCount int `gorm:"default:0" json:"program_count"`

	StartedAt   Time   `gorm:"not null" json:"started_at"`
	CompletedAt *Time  `json:"completed_at,omitempty"`
	Error       string `gorm:"size:4096" json:"error,omitempty"`
}

// TableName returns the table name for PipelineExecution.
func (PipelineExecution) TableName() string {
	return "pipeline_executions"
}

// Validate performs basic validation on the execution.
func (e *PipelineExecution) Validate() error {
	if e.ProxyID.IsZero() {
		return ErrProxyIDRequired
	}
	if e.ExecutionPrefix == "" {
		return ErrExecutionPrefixRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the execution and sets defaults.
func (e *PipelineExecution) BeforeCreate(tx *gorm.DB) error {
	if err := e.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if e.Status == "" {
		e.Status = PipelineExecutionStatusRunning
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = Now()
	}
	if e.Stages == nil {
		e.Stages = make(map[string]StageRecord)
	}
	return e.Validate()
}

// BeforeUpdate is a GORM hook that validates the execution before update.
func (e *PipelineExecution) BeforeUpdate(tx *gorm.DB) error {
	return e.Validate()
}

// MarkStageRunning records a stage transitioning to Running.
func (e *PipelineExecution) MarkStageRunning(stage string) {
	if e.Stages == nil {
		e.Stages = make(map[string]StageRecord)
	}
	now := Now()
	e.Stages[stage] = StageRecord{Name: stage, Status: StageStatusRunning, StartedAt: &now}
}

// MarkStageCompleted records a stage's successful completion and artifact ids.
func (e *PipelineExecution) MarkStageCompleted(stage string, artifactIDs []string) {
	rec := e.Stages[stage]
	now := Now()
	rec.Name = stage
	rec.Status = StageStatusCompleted
	rec.CompletedAt = &now
	rec.ArtifactIDs = artifactIDs
	if rec.StartedAt != nil {
		rec.DurationMs = now.Sub(*rec.StartedAt).Milliseconds()
	}
	e.Stages[stage] = rec
}

// MarkStageFailed records a stage's failure and the execution's terminal
// Failed state, per the orchestrator's "mark stage Failed, mark execution
// Failed" contract.
func (e *PipelineExecution) MarkStageFailed(stage string, err error) {
	rec := e.Stages[stage]
	now := Now()
	rec.Name = stage
	rec.Status = StageStatusFailed
	rec.CompletedAt = &now
	if err != nil {
		rec.Error = err.Error()
	}
	if rec.StartedAt != nil {
		rec.DurationMs = now.Sub(*rec.StartedAt).Milliseconds()
	}
	e.Stages[stage] = rec

	e.Status = PipelineExecutionStatusFailed
	e.CompletedAt = &now
	if err != nil {
		e.Error = err.Error()
	}
}

// Complete marks the execution Completed with final counts.
func (e *PipelineExecution) Complete(channelCount, programCount int) {
	now := Now()
	e.Status = PipelineExecutionStatusCompleted
	e.CompletedAt = &now
	e.ChannelCount = channelCount
	e.ProgramCount = programCount
}

// Cancel marks the execution Cancelled.
func (e *PipelineExecution) Cancel() {
	now := Now()
	e.Status = PipelineExecutionStatusCancelled
	e.CompletedAt = &now
}

// PipelineArtifact is a single artifact produced by a stage: an in-memory
// or sandbox-path-backed blob consumed by later stages in the same
// execution. Immutable once created; garbage-collected when the owning
// execution ends (see internal/pipeline/core.Orchestrator).
type PipelineArtifact struct {
	BaseModel

	// ExecutionID is the owning PipelineExecution.
	ExecutionID ULID `gorm:"type:varchar(26);not null;index" json:"execution_id"`

	// Type names the artifact kind, e.g. "channel_source", "mapped_channels",
	// "filtered_epg", "proxy_m3u", "proxy_xmltv".
	Type string `gorm:"not null;size:100;index" json:"type"`

	// ProducingStage is the stage name that created this artifact.
	ProducingStage string `gorm:"not null;size:100" json:"producing_stage"`

	// ContentRef locates the artifact's bytes: either a sandbox-relative
	// path (internal/storage) for spilled/published content, or empty when
	// the artifact lives only in the in-process iterator that produced it.
	ContentRef string `gorm:"size:1024" json:"content_ref,omitempty"`

	// ContentType is a MIME-ish type hint, e.g. "text/x-mpegurl", "text/xml".
	ContentType string `gorm:"size:100" json:"content_type,omitempty"`

	// SizeBytes is the artifact's size if known ahead of consumption.
	SizeBytes int64 `json:"size_bytes,omitempty"`
}

// TableName returns the table name for PipelineArtifact.
func (PipelineArtifact) TableName() string {
	return "pipeline_artifacts"
}

// Validate performs basic validation on the artifact.
func (a *PipelineArtifact) Validate() error {
	if a.ExecutionID.IsZero() {
		return ErrValidation{Field: "execution_id", Message: "execution_id is required"}
	}
	if a.Type == "" {
		return ErrValidation{Field: "type", Message: "type is required"}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates and generates ULID.
func (a *PipelineArtifact) BeforeCreate(tx *gorm.DB) error {
	if err := a.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return a.Validate()
}
