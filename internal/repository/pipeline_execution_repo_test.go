package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/chanrelay/chanrelay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupPipelineExecutionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.PipelineExecution{}, &models.PipelineArtifact{})
	require.NoError(t, err)

	return db
}

func TestPipelineExecutionRepo_Create_GetByID(t *testing.T) {
	db := setupPipelineExecutionTestDB(t)
	repo := NewPipelineExecutionRepository(db)
	ctx := context.Background()

	proxyID := models.NewULID()
	exec := &models.PipelineExecution{
		ProxyID:         proxyID,
		ExecutionPrefix: "exec-1",
	}

	require.NoError(t, repo.Create(ctx, exec))
	assert.False(t, exec.ID.IsZero())
	assert.Equal(t, models.PipelineExecutionStatusRunning, exec.Status)
	assert.NotNil(t, exec.Stages)

	found, err := repo.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, proxyID, found.ProxyID)
	assert.Equal(t, "exec-1", found.ExecutionPrefix)
}

func TestPipelineExecutionRepo_GetActiveByProxyID(t *testing.T) {
	db := setupPipelineExecutionTestDB(t)
	repo := NewPipelineExecutionRepository(db)
	ctx := context.Background()

	proxyID := models.NewULID()

	active := &models.PipelineExecution{ProxyID: proxyID, ExecutionPrefix: "active"}
	require.NoError(t, repo.Create(ctx, active))

	found, err := repo.GetActiveByProxyID(ctx, proxyID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, active.ID, found.ID)

	active.Complete(10, 20)
	require.NoError(t, repo.Update(ctx, active))

	found, err = repo.GetActiveByProxyID(ctx, proxyID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestPipelineExecutionRepo_GetLatestByProxyID(t *testing.T) {
	db := setupPipelineExecutionTestDB(t)
	repo := NewPipelineExecutionRepository(db)
	ctx := context.Background()

	proxyID := models.NewULID()

	first := &models.PipelineExecution{ProxyID: proxyID, ExecutionPrefix: "first"}
	require.NoError(t, repo.Create(ctx, first))
	first.Complete(1, 1)
	require.NoError(t, repo.Update(ctx, first))

	second := &models.PipelineExecution{ProxyID: proxyID, ExecutionPrefix: "second"}
	require.NoError(t, repo.Create(ctx, second))

	found, err := repo.GetLatestByProxyID(ctx, proxyID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, second.ID, found.ID)
}

func TestPipelineExecutionRepo_Update_StageTransitions(t *testing.T) {
	db := setupPipelineExecutionTestDB(t)
	repo := NewPipelineExecutionRepository(db)
	ctx := context.Background()

	exec := &models.PipelineExecution{ProxyID: models.NewULID(), ExecutionPrefix: "stages"}
	require.NoError(t, repo.Create(ctx, exec))

	exec.MarkStageRunning("data_mapping")
	exec.MarkStageCompleted("data_mapping", []string{"artifact-1"})
	exec.MarkStageRunning("generation")
	require.NoError(t, repo.Update(ctx, exec))

	found, err := repo.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Contains(t, found.Stages, "data_mapping")
	assert.Equal(t, models.StageStatusCompleted, found.Stages["data_mapping"].Status)
	assert.Equal(t, models.StageStatusRunning, found.Stages["generation"].Status)
}

func TestPipelineExecutionRepo_DeleteOlderThan(t *testing.T) {
	db := setupPipelineExecutionTestDB(t)
	repo := NewPipelineExecutionRepository(db)
	ctx := context.Background()

	old := &models.PipelineExecution{ProxyID: models.NewULID(), ExecutionPrefix: "old"}
	require.NoError(t, repo.Create(ctx, old))
	old.Complete(5, 5)
	require.NoError(t, repo.Update(ctx, old))
	require.NoError(t, db.Model(old).UpdateColumn("started_at", models.Now().Add(-48*time.Hour)).Error)

	require.NoError(t, repo.CreateArtifact(ctx, &models.PipelineArtifact{
		ExecutionID:    old.ID,
		Type:           "proxy_m3u",
		ProducingStage: "generation",
	}))

	recent := &models.PipelineExecution{ProxyID: models.NewULID(), ExecutionPrefix: "recent"}
	require.NoError(t, repo.Create(ctx, recent))
	recent.Complete(1, 1)
	require.NoError(t, repo.Update(ctx, recent))

	stillRunning := &models.PipelineExecution{ProxyID: models.NewULID(), ExecutionPrefix: "running"}
	require.NoError(t, repo.Create(ctx, stillRunning))
	require.NoError(t, db.Model(stillRunning).UpdateColumn("started_at", models.Now().Add(-48*time.Hour)).Error)

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	found, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	artifacts, err := repo.GetArtifactsByExecutionID(ctx, old.ID)
	require.NoError(t, err)
	assert.Empty(t, artifacts)

	found, err = repo.GetByID(ctx, stillRunning.ID)
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestPipelineExecutionRepo_Artifacts(t *testing.T) {
	db := setupPipelineExecutionTestDB(t)
	repo := NewPipelineExecutionRepository(db)
	ctx := context.Background()

	exec := &models.PipelineExecution{ProxyID: models.NewULID(), ExecutionPrefix: "artifacts"}
	require.NoError(t, repo.Create(ctx, exec))

	m3u := &models.PipelineArtifact{
		ExecutionID:    exec.ID,
		Type:           "proxy_m3u",
		ProducingStage: "generation",
		ContentRef:     "artifacts/exec-1/proxy.m3u",
		ContentType:    "text/x-mpegurl",
	}
	xmltv := &models.PipelineArtifact{
		ExecutionID:    exec.ID,
		Type:           "proxy_xmltv",
		ProducingStage: "generation",
		ContentRef:     "artifacts/exec-1/proxy.xml",
		ContentType:    "text/xml",
	}
	require.NoError(t, repo.CreateArtifact(ctx, m3u))
	require.NoError(t, repo.CreateArtifact(ctx, xmltv))

	all, err := repo.GetArtifactsByExecutionID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := repo.GetArtifactByExecutionIDAndType(ctx, exec.ID, "proxy_xmltv")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, xmltv.ID, found.ID)

	notFound, err := repo.GetArtifactByExecutionIDAndType(ctx, exec.ID, "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, notFound)

	deleted, err := repo.DeleteArtifactsByExecutionID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	all, err = repo.GetArtifactsByExecutionID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}
