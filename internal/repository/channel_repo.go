package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chanrelay/chanrelay/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// channelRepo implements ChannelRepository using GORM.
type channelRepo struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) *channelRepo {
	return &channelRepo{db: db}
}

// Create creates a new channel.
func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

// CreateBatch creates multiple channels in a single batch.
func (r *channelRepo) CreateBatch(ctx context.Context, channels []*models.Channel) error {
	if len(channels) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(channels).Error; err != nil {
		return fmt.Errorf("creating channel batch: %w", err)
	}
	return nil
}

// channelUpsertColumns are the mutable columns refreshed on conflict. The
// primary key itself is never in this list since it's the conflict target.
var channelUpsertColumns = []string{
	"tvg_id", "tvg_name", "tvg_logo", "tvg_chno", "group_title",
	"channel_name", "stream_url", "extra", "updated_at",
}

// UpsertBatch creates or updates multiple channels, handling duplicates gracefully.
// Channel.ID is deterministic from (source_id, stream_url, channel_name), so
// re-ingesting unchanged upstream entries is a no-op conflict on that ID.
func (r *channelRepo) UpsertBatch(ctx context.Context, channels []*models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	for _, ch := range channels {
		if ch.ID.IsZero() {
			ch.AssignID()
		}
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(channelUpsertColumns),
	}).Create(channels).Error; err != nil {
		return fmt.Errorf("upserting channel batch: %w", err)
	}
	return nil
}

// CreateInBatches creates multiple channels in batches.
// This is optimized for bulk inserts to minimize memory usage.
func (r *channelRepo) CreateInBatches(ctx context.Context, channels []*models.Channel, batchSize int) error {
	if len(channels) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	if err := r.db.WithContext(ctx).CreateInBatches(channels, batchSize).Error; err != nil {
		return fmt.Errorf("creating channels in batches: %w", err)
	}
	return nil
}

// GetByID retrieves a channel by ID.
func (r *channelRepo) GetByID(ctx context.Context, id models.ChannelID) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by ID: %w", err)
	}
	return &channel, nil
}

// GetByIDWithSource retrieves a channel by ID with its Source relationship preloaded.
func (r *channelRepo) GetByIDWithSource(ctx context.Context, id models.ChannelID) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Preload("Source").Where("id = ?", id).First(&channel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by ID with source: %w", err)
	}
	return &channel, nil
}

// GetBySourceID retrieves all channels for a source using a callback for streaming.
// Uses GORM's Rows() iterator for reliable row-by-row processing without batch issues.
func (r *channelRepo) GetBySourceID(ctx context.Context, sourceID models.ULID, callback func(*models.Channel) error) error {
	rows, err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("source_id = ?", sourceID).
		Order("id ASC").
		Rows()
	if err != nil {
		return fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channel models.Channel
		if err := r.db.ScanRows(rows, &channel); err != nil {
			return fmt.Errorf("scanning channel row: %w", err)
		}
		if err := callback(&channel); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating channels: %w", err)
	}

	return nil
}

// GetAllStreaming retrieves all channels across all sources using a callback for streaming.
func (r *channelRepo) GetAllStreaming(ctx context.Context, callback func(*models.Channel) error) error {
	rows, err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Order("id ASC").
		Rows()
	if err != nil {
		return fmt.Errorf("querying channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channel models.Channel
		if err := r.db.ScanRows(rows, &channel); err != nil {
			return fmt.Errorf("scanning channel row: %w", err)
		}
		if err := callback(&channel); err != nil {
			return err
		}
	}

	return rows.Err()
}

// GetBySourceIDPaginated retrieves channels for a source with pagination.
func (r *channelRepo) GetBySourceIDPaginated(ctx context.Context, sourceID models.ULID, offset, limit int) ([]*models.Channel, int64, error) {
	var channels []*models.Channel
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Channel{}).Where("source_id = ?", sourceID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting channels: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Where("source_id = ?", sourceID).
		Order("channel_name ASC").
		Offset(offset).
		Limit(limit).
		Find(&channels).Error; err != nil {
		return nil, 0, fmt.Errorf("getting paginated channels: %w", err)
	}

	return channels, total, nil
}

// Update updates an existing channel.
func (r *channelRepo) Update(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Save(channel).Error; err != nil {
		return fmt.Errorf("updating channel: %w", err)
	}
	return nil
}

// Delete hard-deletes a channel by ID.
// Uses Unscoped() for permanent deletion for consistency with DeleteBySourceID.
func (r *channelRepo) Delete(ctx context.Context, id models.ChannelID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&models.Channel{}).Error; err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

// DeleteBySourceID hard-deletes all channels for a source.
// Uses Unscoped() for permanent deletion since channels are fully replaced on each ingestion.
func (r *channelRepo) DeleteBySourceID(ctx context.Context, sourceID models.ULID) error {
	if err := r.db.WithContext(ctx).Unscoped().Where("source_id = ?", sourceID).Delete(&models.Channel{}).Error; err != nil {
		return fmt.Errorf("deleting channels by source ID: %w", err)
	}
	return nil
}

// DeleteStaleBySourceID deletes channels for a source that haven't been updated since the given time.
// This is used for "mark and sweep" cleanup: upsert updates the updated_at timestamp, so channels
// not present in the new data will have an older updated_at and will be deleted.
// Returns the number of channels deleted.
func (r *channelRepo) DeleteStaleBySourceID(ctx context.Context, sourceID models.ULID, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Unscoped().
		Where("source_id = ? AND updated_at < ?", sourceID, olderThan).
		Delete(&models.Channel{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting stale channels: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CountBySourceID returns the number of channels for a source.
func (r *channelRepo) CountBySourceID(ctx context.Context, sourceID models.ULID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Channel{}).Where("source_id = ?", sourceID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting channels: %w", err)
	}
	return count, nil
}

// GetByTvgID retrieves channels by EPG ID (for matching with programs).
func (r *channelRepo) GetByTvgID(ctx context.Context, tvgID string) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := r.db.WithContext(ctx).Where("tvg_id = ?", tvgID).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("getting channels by tvg_id: %w", err)
	}
	return channels, nil
}

// GetByGroupTitle retrieves channels by group/category.
func (r *channelRepo) GetByGroupTitle(ctx context.Context, groupTitle string) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := r.db.WithContext(ctx).Where("group_title = ?", groupTitle).Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("getting channels by group_title: %w", err)
	}
	return channels, nil
}

// GetDistinctGroups returns all unique group titles.
func (r *channelRepo) GetDistinctGroups(ctx context.Context) ([]string, error) {
	var groups []string
	if err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Distinct("group_title").
		Where("group_title != ''").
		Order("group_title ASC").
		Pluck("group_title", &groups).Error; err != nil {
		return nil, fmt.Errorf("getting distinct groups: %w", err)
	}
	return groups, nil
}

// allowedAutocompleteFields defines which fields can be queried for autocomplete.
// This prevents SQL injection by whitelisting allowed column names.
var allowedAutocompleteFields = map[string]string{
	"group_title":  "group_title",
	"channel_name": "channel_name",
	"tvg_id":       "tvg_id",
	"tvg_name":     "tvg_name",
}

// GetDistinctFieldValues returns distinct values for a channel field with occurrence counts.
// The field parameter must be one of the allowed fields (group_title, channel_name, tvg_id, tvg_name).
// Results are filtered by the query parameter (case-insensitive contains) and limited.
func (r *channelRepo) GetDistinctFieldValues(ctx context.Context, field string, query string, limit int) ([]FieldValueResult, error) {
	columnName, ok := allowedAutocompleteFields[field]
	if !ok {
		return nil, fmt.Errorf("invalid field name: %s", field)
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var results []FieldValueResult
	db := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Select(columnName + " AS value, COUNT(*) AS count").
		Where(columnName + " IS NOT NULL AND " + columnName + " != ''").
		Group(columnName).
		Order("count DESC").
		Limit(limit)

	if query != "" {
		db = db.Where("LOWER("+columnName+") LIKE LOWER(?)", "%"+query+"%")
	}

	if err := db.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("getting distinct field values: %w", err)
	}

	return results, nil
}

// Transaction executes the given function within a database transaction.
// The provided function receives a transactional repository.
// If the function returns an error, the transaction is rolled back.
func (r *channelRepo) Transaction(ctx context.Context, fn func(ChannelRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := &channelRepo{db: tx}
		return fn(txRepo)
	})
}

// Ensure channelRepo implements ChannelRepository at compile time.
var _ ChannelRepository = (*channelRepo)(nil)
