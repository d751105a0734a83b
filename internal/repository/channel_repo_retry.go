package repository

import (
	"context"
	"time"

	"github.com/chanrelay/chanrelay/internal/models"
)

// retryingChannelRepository decorates a ChannelRepository with automatic
// retries on transient database errors. Channel writes happen in large
// batches during ingestion while proxy generation concurrently reads the
// same table, making this repository the most exposed to sqlite's
// single-writer lock contention.
type retryingChannelRepository struct {
	inner    ChannelRepository
	readCfg  RetryConfig
	writeCfg RetryConfig
}

// WithRetries wraps repo so every operation retries on a transient error
// per readCfg (lookups) or writeCfg (mutations).
func WithRetries(repo ChannelRepository, readCfg, writeCfg RetryConfig) ChannelRepository {
	return &retryingChannelRepository{inner: repo, readCfg: readCfg, writeCfg: writeCfg}
}

func (r *retryingChannelRepository) Create(ctx context.Context, channel *models.Channel) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.Create(ctx, channel) })
}

func (r *retryingChannelRepository) CreateBatch(ctx context.Context, channels []*models.Channel) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.CreateBatch(ctx, channels) })
}

func (r *retryingChannelRepository) CreateInBatches(ctx context.Context, channels []*models.Channel, batchSize int) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.CreateInBatches(ctx, channels, batchSize) })
}

func (r *retryingChannelRepository) UpsertBatch(ctx context.Context, channels []*models.Channel) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.UpsertBatch(ctx, channels) })
}

func (r *retryingChannelRepository) GetByID(ctx context.Context, id models.ChannelID) (*models.Channel, error) {
	var out *models.Channel
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		out, err = r.inner.GetByID(ctx, id)
		return err
	})
	return out, err
}

func (r *retryingChannelRepository) GetByIDWithSource(ctx context.Context, id models.ChannelID) (*models.Channel, error) {
	var out *models.Channel
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		out, err = r.inner.GetByIDWithSource(ctx, id)
		return err
	})
	return out, err
}

// GetBySourceID retries the query setup, not the per-row callback: once
// rows start streaming to the caller, replaying them on a transient error
// would double-deliver earlier rows.
func (r *retryingChannelRepository) GetBySourceID(ctx context.Context, sourceID models.ULID, callback func(*models.Channel) error) error {
	return Retry(ctx, r.readCfg, nil, func() error { return r.inner.GetBySourceID(ctx, sourceID, callback) })
}

func (r *retryingChannelRepository) GetAllStreaming(ctx context.Context, callback func(*models.Channel) error) error {
	return Retry(ctx, r.readCfg, nil, func() error { return r.inner.GetAllStreaming(ctx, callback) })
}

func (r *retryingChannelRepository) GetBySourceIDPaginated(ctx context.Context, sourceID models.ULID, offset, limit int) ([]*models.Channel, int64, error) {
	var channels []*models.Channel
	var total int64
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		channels, total, err = r.inner.GetBySourceIDPaginated(ctx, sourceID, offset, limit)
		return err
	})
	return channels, total, err
}

func (r *retryingChannelRepository) Update(ctx context.Context, channel *models.Channel) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.Update(ctx, channel) })
}

func (r *retryingChannelRepository) Delete(ctx context.Context, id models.ChannelID) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.Delete(ctx, id) })
}

func (r *retryingChannelRepository) DeleteBySourceID(ctx context.Context, sourceID models.ULID) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.DeleteBySourceID(ctx, sourceID) })
}

func (r *retryingChannelRepository) DeleteStaleBySourceID(ctx context.Context, sourceID models.ULID, olderThan time.Time) (int64, error) {
	var n int64
	err := Retry(ctx, r.writeCfg, nil, func() error {
		var err error
		n, err = r.inner.DeleteStaleBySourceID(ctx, sourceID, olderThan)
		return err
	})
	return n, err
}

func (r *retryingChannelRepository) CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error) {
	var n int64
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		n, err = r.inner.CountBySourceID(ctx, sourceID)
		return err
	})
	return n, err
}

func (r *retryingChannelRepository) GetByTvgID(ctx context.Context, tvgID string) ([]*models.Channel, error) {
	var out []*models.Channel
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		out, err = r.inner.GetByTvgID(ctx, tvgID)
		return err
	})
	return out, err
}

func (r *retryingChannelRepository) GetByGroupTitle(ctx context.Context, groupTitle string) ([]*models.Channel, error) {
	var out []*models.Channel
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		out, err = r.inner.GetByGroupTitle(ctx, groupTitle)
		return err
	})
	return out, err
}

func (r *retryingChannelRepository) GetDistinctGroups(ctx context.Context) ([]string, error) {
	var out []string
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		out, err = r.inner.GetDistinctGroups(ctx)
		return err
	})
	return out, err
}

func (r *retryingChannelRepository) GetDistinctFieldValues(ctx context.Context, field string, query string, limit int) ([]FieldValueResult, error) {
	var out []FieldValueResult
	err := Retry(ctx, r.readCfg, nil, func() error {
		var err error
		out, err = r.inner.GetDistinctFieldValues(ctx, field, query, limit)
		return err
	})
	return out, err
}

// Transaction retries the whole transaction on a transient error. This is
// safe only because fn is expected to be idempotent within a single
// transaction attempt (no side effects visible outside the rolled-back
// transaction survive a retry).
func (r *retryingChannelRepository) Transaction(ctx context.Context, fn func(ChannelRepository) error) error {
	return Retry(ctx, r.writeCfg, nil, func() error { return r.inner.Transaction(ctx, fn) })
}

// Ensure retryingChannelRepository implements ChannelRepository at compile time.
var _ ChannelRepository = (*retryingChannelRepository)(nil)
