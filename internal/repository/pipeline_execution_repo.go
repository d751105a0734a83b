package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chanrelay/chanrelay/internal/models"
	"gorm.io/gorm"
)

// pipelineExecutionRepo implements PipelineExecutionRepository using GORM.
type pipelineExecutionRepo struct {
	db *gorm.DB
}

// NewPipelineExecutionRepository creates a new PipelineExecutionRepository.
func NewPipelineExecutionRepository(db *gorm.DB) *pipelineExecutionRepo {
	return &pipelineExecutionRepo{db: db}
}

// Create creates a new pipeline execution.
func (r *pipelineExecutionRepo) Create(ctx context.Context, exec *models.PipelineExecution) error {
	if err := r.db.WithContext(ctx).Create(exec).Error; err != nil {
		return fmt.Errorf("creating pipeline execution: %w", err)
	}
	return nil
}

// GetByID retrieves a pipeline execution by ID.
func (r *pipelineExecutionRepo) GetByID(ctx context.Context, id models.ULID) (*models.PipelineExecution, error) {
	var exec models.PipelineExecution
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&exec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting pipeline execution by ID: %w", err)
	}
	return &exec, nil
}

// GetActiveByProxyID retrieves the non-terminal execution for a proxy, if any.
// At most one should exist per proxy; the orchestrator enforces that invariant.
func (r *pipelineExecutionRepo) GetActiveByProxyID(ctx context.Context, proxyID models.ULID) (*models.PipelineExecution, error) {
	var exec models.PipelineExecution
	if err := r.db.WithContext(ctx).
		Where("proxy_id = ? AND status = ?", proxyID, models.PipelineExecutionStatusRunning).
		Order("created_at DESC").
		First(&exec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting active pipeline execution: %w", err)
	}
	return &exec, nil
}

// GetLatestByProxyID retrieves the most recent execution for a proxy, regardless of status.
func (r *pipelineExecutionRepo) GetLatestByProxyID(ctx context.Context, proxyID models.ULID) (*models.PipelineExecution, error) {
	var exec models.PipelineExecution
	if err := r.db.WithContext(ctx).
		Where("proxy_id = ?", proxyID).
		Order("created_at DESC").
		First(&exec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting latest pipeline execution: %w", err)
	}
	return &exec, nil
}

// Update updates an existing pipeline execution.
func (r *pipelineExecutionRepo) Update(ctx context.Context, exec *models.PipelineExecution) error {
	if err := r.db.WithContext(ctx).Save(exec).Error; err != nil {
		return fmt.Errorf("updating pipeline execution: %w", err)
	}
	return nil
}

// DeleteOlderThan hard-deletes terminal executions started before the given time,
// along with their artifacts. Running executions are never deleted by this call.
func (r *pipelineExecutionRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []models.ULID
		if err := tx.Model(&models.PipelineExecution{}).
			Where("started_at < ? AND status != ?", before, models.PipelineExecutionStatusRunning).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("finding stale pipeline executions: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("execution_id IN ?", ids).Delete(&models.PipelineArtifact{}).Error; err != nil {
			return fmt.Errorf("deleting artifacts for stale executions: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&models.PipelineExecution{})
		if result.Error != nil {
			return fmt.Errorf("deleting stale pipeline executions: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// CreateArtifact creates a new pipeline artifact.
func (r *pipelineExecutionRepo) CreateArtifact(ctx context.Context, artifact *models.PipelineArtifact) error {
	if err := r.db.WithContext(ctx).Create(artifact).Error; err != nil {
		return fmt.Errorf("creating pipeline artifact: %w", err)
	}
	return nil
}

// GetArtifactsByExecutionID retrieves all artifacts produced by an execution.
func (r *pipelineExecutionRepo) GetArtifactsByExecutionID(ctx context.Context, executionID models.ULID) ([]*models.PipelineArtifact, error) {
	var artifacts []*models.PipelineArtifact
	if err := r.db.WithContext(ctx).
		Where("execution_id = ?", executionID).
		Order("created_at ASC").
		Find(&artifacts).Error; err != nil {
		return nil, fmt.Errorf("getting pipeline artifacts: %w", err)
	}
	return artifacts, nil
}

// GetArtifactByExecutionIDAndType retrieves the artifact of a given type for an execution.
// Returns the most recently created match if a stage produced more than one.
func (r *pipelineExecutionRepo) GetArtifactByExecutionIDAndType(ctx context.Context, executionID models.ULID, artifactType string) (*models.PipelineArtifact, error) {
	var artifact models.PipelineArtifact
	if err := r.db.WithContext(ctx).
		Where("execution_id = ? AND type = ?", executionID, artifactType).
		Order("created_at DESC").
		First(&artifact).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting pipeline artifact by type: %w", err)
	}
	return &artifact, nil
}

// DeleteArtifactsByExecutionID hard-deletes all artifacts for an execution.
func (r *pipelineExecutionRepo) DeleteArtifactsByExecutionID(ctx context.Context, executionID models.ULID) (int64, error) {
	result := r.db.WithContext(ctx).Where("execution_id = ?", executionID).Delete(&models.PipelineArtifact{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting pipeline artifacts: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ensure pipelineExecutionRepo implements PipelineExecutionRepository at compile time.
var _ PipelineExecutionRepository = (*pipelineExecutionRepo)(nil)
