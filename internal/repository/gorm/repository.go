package gormrepository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockalert/internal/models"
	"stockalert/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- mention aggregates ------------------------------------------------------

func (s *Store) DeleteMentionWindowTx(ctx context.Context, tx *gorm.DB, date time.Time, channel string) error {
	if tx == nil {
		return nil
	}
	return tx.WithContext(ctx).
		Where("date = ?", date).
		Where("channel = ?", channel).
		Delete(&models.MentionAggregate{}).Error
}

func (s *Store) UpsertMentionDeltasTx(ctx context.Context, tx *gorm.DB, items []models.MentionAggregate) error {
	if tx == nil || len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "date"},
			{Name: "channel"},
			{Name: "entity_name"},
			{Name: "entity_kind"},
		},
		DoUpdates: clause.Assignments(map[string]any{
			"mention_count":     gorm.Expr("mention_aggregates.mention_count + excluded.mention_count"),
			"sentiment_sum":     gorm.Expr("mention_aggregates.sentiment_sum + excluded.sentiment_sum"),
			"sentiment_samples": gorm.Expr("mention_aggregates.sentiment_samples + excluded.sentiment_samples"),
			"mean_sentiment": gorm.Expr(
				"CASE WHEN mention_aggregates.sentiment_samples + excluded.sentiment_samples > 0 " +
					"THEN (mention_aggregates.sentiment_sum + excluded.sentiment_sum) / (mention_aggregates.sentiment_samples + excluded.sentiment_samples) " +
					"ELSE 0 END"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(&items).Error
}

func (s *Store) ListMentionAggregates(ctx context.Context, params repository.ListMentionsParams) ([]models.MentionAggregate, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyMentionFilters(s.db.WithContext(ctx).Model(&models.MentionAggregate{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "mention_count")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.MentionAggregate
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountMentionAggregates(ctx context.Context, params repository.ListMentionsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	query := applyMentionFilters(s.db.WithContext(ctx).Model(&models.MentionAggregate{}), params)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) EntityRollup(ctx context.Context, params repository.RollupParams) ([]repository.EntityRollupRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.MentionAggregate{}).
		Select(`
			entity_name,
			entity_kind,
			SUM(mention_count) AS total_count,
			COALESCE(SUM(sentiment_sum) / NULLIF(SUM(sentiment_samples), 0), 0) AS mean_sentiment
		`).
		Where("date = ?", params.Date)
	if len(params.Channels) > 0 {
		query = query.Where("channel IN ?", params.Channels)
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("entity_kind = ?", strings.TrimSpace(*params.Kind))
	}
	query = query.Group("entity_name, entity_kind").Order("total_count DESC, entity_name ASC")
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	var rows []repository.EntityRollupRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) MentionTrend(ctx context.Context, params repository.TrendParams) ([]repository.TrendRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.MentionAggregate{}).
		Select("date, entity_name, entity_kind, SUM(mention_count) AS total_count").
		Where("date >= ?", params.From).
		Where("date <= ?", params.To)
	if len(params.Channels) > 0 {
		query = query.Where("channel IN ?", params.Channels)
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("entity_kind = ?", strings.TrimSpace(*params.Kind))
	}
	if len(params.Entities) > 0 {
		query = query.Where("entity_name IN ?", params.Entities)
	}
	query = query.Group("date, entity_name, entity_kind").Order("date ASC, total_count DESC")
	var rows []repository.TrendRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// --- ingest runs -------------------------------------------------------------

func (s *Store) InsertIngestRun(ctx context.Context, item *models.IngestRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateIngestRun(ctx context.Context, id string, updates map[string]any) error {
	if s == nil || s.db == nil || strings.TrimSpace(id) == "" || len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.IngestRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (s *Store) ListIngestRuns(ctx context.Context, params repository.ListRunsParams) ([]models.IngestRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.IngestRun{})
	if params.Channel != nil && strings.TrimSpace(*params.Channel) != "" {
		query = query.Where("channel = ?", strings.TrimSpace(*params.Channel))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("started_at >= ?", *params.Since)
	}
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.IngestRun
	if err := query.Order("started_at DESC").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers -----------------------------------------------------------------

func applyMentionFilters(query *gorm.DB, params repository.ListMentionsParams) *gorm.DB {
	if params.Date != nil && !params.Date.IsZero() {
		query = query.Where("date = ?", *params.Date)
	}
	if params.From != nil && !params.From.IsZero() {
		query = query.Where("date >= ?", *params.From)
	}
	if params.To != nil && !params.To.IsZero() {
		query = query.Where("date <= ?", *params.To)
	}
	if len(params.Channels) > 0 {
		query = query.Where("channel IN ?", params.Channels)
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("entity_kind = ?", strings.TrimSpace(*params.Kind))
	}
	if params.EntityName != nil && strings.TrimSpace(*params.EntityName) != "" {
		query = query.Where("entity_name = ?", strings.TrimSpace(*params.EntityName))
	}
	return query
}

var orderableColumns = map[string]struct{}{
	"date":           {},
	"channel":        {},
	"entity_name":    {},
	"mention_count":  {},
	"mean_sentiment": {},
	"updated_at":     {},
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(strings.ToLower(orderBy))
	if _, ok := orderableColumns[column]; !ok {
		column = fallback
	}
	dir := "DESC"
	if asc != nil && *asc {
		dir = "ASC"
	}
	return query.Order(column + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
