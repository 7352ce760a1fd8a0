package ingest

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"stockalert/internal/models"
	"stockalert/internal/repository"
)

// stubRepo is a test-only in-memory mention store. Flush semantics mirror
// the real gorm store: delete-window plus delta-upsert inside InTx.
type stubRepo struct {
	rows map[string]models.MentionAggregate
	runs map[string]models.IngestRun

	failTx   bool
	txDepth  int
	txStarts int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		rows: map[string]models.MentionAggregate{},
		runs: map[string]models.IngestRun{},
	}
}

func rowKey(date time.Time, channel, entity, kind string) string {
	return date.Format("2006-01-02") + "|" + channel + "|" + entity + "|" + kind
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.txStarts++
	if s.failTx {
		return errors.New("store unavailable")
	}
	s.txDepth++
	defer func() { s.txDepth-- }()
	return fn(nil)
}

func (s *stubRepo) DeleteMentionWindowTx(ctx context.Context, tx *gorm.DB, date time.Time, channel string) error {
	for key, row := range s.rows {
		if row.Channel == channel && row.Date.Equal(date) {
			delete(s.rows, key)
		}
	}
	return nil
}

func (s *stubRepo) UpsertMentionDeltasTx(ctx context.Context, tx *gorm.DB, items []models.MentionAggregate) error {
	for _, item := range items {
		key := rowKey(item.Date, item.Channel, item.EntityName, item.EntityKind)
		existing, ok := s.rows[key]
		if !ok {
			s.rows[key] = item
			continue
		}
		existing.MentionCount += item.MentionCount
		existing.SentimentSum = existing.SentimentSum.Add(item.SentimentSum)
		existing.SentimentSamples += item.SentimentSamples
		if existing.SentimentSamples > 0 {
			sum, _ := existing.SentimentSum.Float64()
			existing.MeanSentiment = sum / float64(existing.SentimentSamples)
		} else {
			existing.MeanSentiment = 0
		}
		s.rows[key] = existing
	}
	return nil
}

func (s *stubRepo) ListMentionAggregates(ctx context.Context, params repository.ListMentionsParams) ([]models.MentionAggregate, error) {
	var out []models.MentionAggregate
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

func (s *stubRepo) CountMentionAggregates(ctx context.Context, params repository.ListMentionsParams) (int64, error) {
	return int64(len(s.rows)), nil
}

func (s *stubRepo) EntityRollup(ctx context.Context, params repository.RollupParams) ([]repository.EntityRollupRow, error) {
	return nil, nil
}

func (s *stubRepo) MentionTrend(ctx context.Context, params repository.TrendParams) ([]repository.TrendRow, error) {
	return nil, nil
}

func (s *stubRepo) InsertIngestRun(ctx context.Context, item *models.IngestRun) error {
	if item != nil {
		s.runs[item.ID] = *item
	}
	return nil
}

func (s *stubRepo) UpdateIngestRun(ctx context.Context, id string, updates map[string]any) error {
	run, ok := s.runs[id]
	if !ok {
		return nil
	}
	if v, ok := updates["status"].(string); ok {
		run.Status = v
	}
	if v, ok := updates["error"].(string); ok {
		run.Error = v
	}
	if v, ok := updates["messages_seen"].(int64); ok {
		run.MessagesSeen = v
	}
	if v, ok := updates["messages_matched"].(int64); ok {
		run.MessagesMatched = v
	}
	if v, ok := updates["entities_flushed"].(int64); ok {
		run.EntitiesFlushed = v
	}
	if v, ok := updates["scorer_failures"].(int64); ok {
		run.ScorerFailures = v
	}
	s.runs[id] = run
	return nil
}

func (s *stubRepo) ListIngestRuns(ctx context.Context, params repository.ListRunsParams) ([]models.IngestRun, error) {
	var out []models.IngestRun
	for _, run := range s.runs {
		out = append(out, run)
	}
	return out, nil
}
