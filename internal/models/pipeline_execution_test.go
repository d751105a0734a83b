package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineExecution_TableName(t *testing.T) {
	assert.Equal(t, "pipeline_executions", PipelineExecution{}.TableName())
}

func TestPipelineExecution_Validate(t *testing.T) {
	tests := []struct {
		name    string
		exec    PipelineExecution
		wantErr error
	}{
		{
			name:    "missing proxy id",
			exec:    PipelineExecution{ExecutionPrefix: "exec-1"},
			wantErr: ErrProxyIDRequired,
		},
		{
			name:    "missing execution prefix",
			exec:    PipelineExecution{ProxyID: NewULID()},
			wantErr: ErrExecutionPrefixRequired,
		},
		{
			name:    "valid",
			exec:    PipelineExecution{ProxyID: NewULID(), ExecutionPrefix: "exec-1"},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.exec.Validate()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPipelineExecutionStatus_IsTerminal(t *testing.T) {
	assert.False(t, PipelineExecutionStatusRunning.IsTerminal())
	assert.True(t, PipelineExecutionStatusCompleted.IsTerminal())
	assert.True(t, PipelineExecutionStatusFailed.IsTerminal())
	assert.True(t, PipelineExecutionStatusCancelled.IsTerminal())
}

func TestPipelineExecution_StageLifecycle(t *testing.T) {
	exec := &PipelineExecution{ProxyID: NewULID(), ExecutionPrefix: "exec-1", Stages: map[string]StageRecord{}}

	exec.MarkStageRunning("data_mapping")
	rec, ok := exec.Stages["data_mapping"]
	require.True(t, ok)
	assert.Equal(t, StageStatusRunning, rec.Status)
	require.NotNil(t, rec.StartedAt)

	exec.MarkStageCompleted("data_mapping", []string{"artifact-1"})
	rec = exec.Stages["data_mapping"]
	assert.Equal(t, StageStatusCompleted, rec.Status)
	assert.Equal(t, []string{"artifact-1"}, rec.ArtifactIDs)
	assert.GreaterOrEqual(t, rec.DurationMs, int64(0))
}

func TestPipelineExecution_MarkStageFailed(t *testing.T) {
	exec := &PipelineExecution{ProxyID: NewULID(), ExecutionPrefix: "exec-1", Stages: map[string]StageRecord{}}
	exec.MarkStageRunning("filtering")

	exec.MarkStageFailed("filtering", errors.New("bad expression"))

	rec := exec.Stages["filtering"]
	assert.Equal(t, StageStatusFailed, rec.Status)
	assert.Equal(t, "bad expression", rec.Error)
	assert.Equal(t, PipelineExecutionStatusFailed, exec.Status)
	assert.Equal(t, "bad expression", exec.Error)
	require.NotNil(t, exec.CompletedAt)
}

func TestPipelineExecution_Complete(t *testing.T) {
	exec := &PipelineExecution{ProxyID: NewULID(), ExecutionPrefix: "exec-1"}
	exec.Complete(42, 100)

	assert.Equal(t, PipelineExecutionStatusCompleted, exec.Status)
	assert.Equal(t, 42, exec.ChannelCount)
	assert.Equal(t, 100, exec.ProgramCount)
	require.NotNil(t, exec.CompletedAt)
}

func TestPipelineExecution_Cancel(t *testing.T) {
	exec := &PipelineExecution{ProxyID: NewULID(), ExecutionPrefix: "exec-1"}
	exec.Cancel()

	assert.Equal(t, PipelineExecutionStatusCancelled, exec.Status)
	require.NotNil(t, exec.CompletedAt)
}

func TestPipelineArtifact_TableName(t *testing.T) {
	assert.Equal(t, "pipeline_artifacts", PipelineArtifact{}.TableName())
}

func TestPipelineArtifact_Validate(t *testing.T) {
	tests := []struct {
		name     string
		artifact PipelineArtifact
		wantErr  bool
	}{
		{
			name:     "missing execution id",
			artifact: PipelineArtifact{Type: "mapped_channels"},
			wantErr:  true,
		},
		{
			name:     "missing type",
			artifact: PipelineArtifact{ExecutionID: NewULID()},
			wantErr:  true,
		},
		{
			name:     "valid",
			artifact: PipelineArtifact{ExecutionID: NewULID(), Type: "mapped_channels"},
			wantErr:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.artifact.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
