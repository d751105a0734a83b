package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/chanrelay/chanrelay/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryingChannelRepository_PassesThroughOnSuccess(t *testing.T) {
	db := setupChannelTestDB(t)
	repo := WithRetries(NewChannelRepository(db), DefaultReadRetryConfig(), DefaultWriteRetryConfig())
	ctx := context.Background()

	source := createTestSource(t, db, "retry-source")
	channel := &models.Channel{
		SourceID:    source.ID,
		ChannelName: "Retry Channel",
		StreamURL:   "http://example.com/stream/retry",
		GroupTitle:  "News",
	}

	require.NoError(t, repo.Create(ctx, channel))
	assert.False(t, channel.ID.IsZero())

	found, err := repo.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Retry Channel", found.ChannelName)

	groups, err := repo.GetDistinctGroups(ctx)
	require.NoError(t, err)
	assert.Contains(t, groups, "News")
}

// failingChannelRepository wraps a real ChannelRepository but forces its
// first N GetByID calls to return a transient error, to exercise the
// decorator's retry loop against a realistic inner implementation.
type failingChannelRepository struct {
	ChannelRepository
	failuresLeft int
}

func (f *failingChannelRepository) GetByID(ctx context.Context, id models.ChannelID) (*models.Channel, error) {
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return nil, errors.New("database is locked")
	}
	return f.ChannelRepository.GetByID(ctx, id)
}

func TestRetryingChannelRepository_RetriesTransientFailures(t *testing.T) {
	db := setupChannelTestDB(t)
	source := createTestSource(t, db, "retry-source-2")
	channel := &models.Channel{
		SourceID:    source.ID,
		ChannelName: "Flaky Channel",
		StreamURL:   "http://example.com/stream/flaky",
	}
	base := NewChannelRepository(db)
	require.NoError(t, base.Create(context.Background(), channel))

	inner := &failingChannelRepository{ChannelRepository: base, failuresLeft: 2}
	readCfg := RetryConfig{MaxAttempts: 5, InitialDelay: 0, MaxDelay: 0, BackoffMultiplier: 1.0}
	repo := WithRetries(inner, readCfg, DefaultWriteRetryConfig())

	found, err := repo.GetByID(context.Background(), channel.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Flaky Channel", found.ChannelName)
	assert.Equal(t, 0, inner.failuresLeft)
}

func TestRetryingChannelRepository_NotFoundAfterRetryIsNotAnError(t *testing.T) {
	db := setupChannelTestDB(t)
	inner := &failingChannelRepository{ChannelRepository: NewChannelRepository(db), failuresLeft: 0}
	inner.failuresLeft = 1

	repo := WithRetries(inner, RetryConfig{MaxAttempts: 3, InitialDelay: 0, MaxDelay: 0, BackoffMultiplier: 1.0}, DefaultWriteRetryConfig())

	// failuresLeft=1 returns a retryable error once, then succeeds reading
	// a channel that was never created, which GORM reports as not-found
	// rather than an error — confirming the decorator doesn't misclassify it.
	found, err := repo.GetByID(context.Background(), models.ChannelID{})
	require.NoError(t, err)
	assert.Nil(t, found)
}
