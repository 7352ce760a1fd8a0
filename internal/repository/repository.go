package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"stockalert/internal/models"
)

// Repository is the mention store boundary. All aggregate mutation goes
// through the Tx methods so a channel's cycle can flush atomically;
// everything else is read-only query surface for the API and the spike
// detector.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// DeleteMentionWindowTx removes the existing aggregate slice for one
	// (date, channel) pair; together with UpsertMentionDeltasTx inside the
	// same transaction it gives replace-on-flush, so re-ingesting a window
	// never double-counts.
	DeleteMentionWindowTx(ctx context.Context, tx *gorm.DB, date time.Time, channel string) error
	// UpsertMentionDeltasTx adds count/sentiment deltas per key, atomically
	// per (date, channel, entity_name, entity_kind) row.
	UpsertMentionDeltasTx(ctx context.Context, tx *gorm.DB, items []models.MentionAggregate) error

	ListMentionAggregates(ctx context.Context, params ListMentionsParams) ([]models.MentionAggregate, error)
	CountMentionAggregates(ctx context.Context, params ListMentionsParams) (int64, error)
	// EntityRollup sums mention counts per entity across channels for one
	// date; mean sentiment is the sample-weighted mean across channels.
	EntityRollup(ctx context.Context, params RollupParams) ([]EntityRollupRow, error)
	MentionTrend(ctx context.Context, params TrendParams) ([]TrendRow, error)

	InsertIngestRun(ctx context.Context, item *models.IngestRun) error
	UpdateIngestRun(ctx context.Context, id string, updates map[string]any) error
	ListIngestRuns(ctx context.Context, params ListRunsParams) ([]models.IngestRun, error)
}

type ListMentionsParams struct {
	Limit      int
	Offset     int
	Date       *time.Time
	From       *time.Time
	To         *time.Time
	Channels   []string
	Kind       *string
	EntityName *string
	OrderBy    string
	Asc        *bool
}

type RollupParams struct {
	Date     time.Time
	Channels []string
	Kind     *string
	// Limit <= 0 means unbounded; the spike detector needs every entity.
	Limit int
}

type EntityRollupRow struct {
	EntityName    string  `json:"entity_name"`
	EntityKind    string  `json:"entity_kind"`
	TotalCount    int64   `json:"total_count"`
	MeanSentiment float64 `json:"mean_sentiment"`
}

type TrendParams struct {
	From     time.Time
	To       time.Time
	Channels []string
	Kind     *string
	Entities []string
}

type TrendRow struct {
	Date       time.Time `json:"date"`
	EntityName string    `json:"entity_name"`
	EntityKind string    `json:"entity_kind"`
	TotalCount int64     `json:"total_count"`
}

type ListRunsParams struct {
	Limit   int
	Offset  int
	Channel *string
	Status  *string
	Since   *time.Time
}
